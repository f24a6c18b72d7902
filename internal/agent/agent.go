// Package agent drives one conversational turn: model call, tool dispatch,
// model call again, until the model answers with plain content.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pampalabs/gabriela/internal/config"
	"github.com/pampalabs/gabriela/internal/llm"
	"github.com/pampalabs/gabriela/internal/logger"
	"github.com/pampalabs/gabriela/internal/session"
	"github.com/pampalabs/gabriela/internal/tools"

	"github.com/sashabaranov/go-openai"

	"github.com/qmuntal/stateless"
)

// FSM States
type FSMState stateless.State

var (
	StateReadyToCallLLM FSMState = "ReadyToCallLLM"
	StateExecutingTools FSMState = "ExecutingTools"
	StateDone           FSMState = "Done"  // Terminal: reply ready
	StateError          FSMState = "Error" // Terminal: internal failure
)

// FSM Triggers
type FSMTrigger stateless.Trigger

var (
	TriggerProcessInput            FSMTrigger = "ProcessInput"
	TriggerLLMRespondedWithContent FSMTrigger = "LLMRespondedWithContent"
	TriggerLLMRequestedTools       FSMTrigger = "LLMRequestedTools"
	TriggerToolsExecutionCompleted FSMTrigger = "ToolsExecutionCompleted"
	TriggerTurnDegraded            FSMTrigger = "TurnDegraded"  // Model failure or turn budget: apology instead of answer
	TriggerErrorOccurred           FSMTrigger = "ErrorOccurred" // Internal inconsistency
)

const defaultSystemPrompt = `Tu nombre es Gabriela y sos un asistente de IA diseñado para ayudar al equipo de Pampa Labs.

Puede ayudar con:

- Registro de gastos
- Cancelacion de gastos
- Registro de comidas planificadas
- Registro de dias donde algun miembro del equipo va a estar fuera de la oficina

Los miembros del equipo son: Petra, Lauta y Fran. Siempre que alguna tool requiera el nombre de un miembro del equipo, usa alguno de esos nombres. Petra tambien se llama Lucas, y Fran se puede referir a el como Pancho.

Tus respuestas deben ser:

1. Amigables y accesibles, usando un tono cálido
2. Concisas y al grano, evitando verbosidad innecesaria
3. Útiles e informativas, proporcionando información precisa
4. Respetuosas de la privacidad del usuario y los límites éticos

Solo puedes ayudar usando las herramientas disponibles y con pedidos que vengan de miembros del equipo. Todo lo que no se pueda responder usando las herramientas, debes decir que no puedes ayudar y disculparte.`

const apologyMessage = "Lo siento, ocurrió un error procesando tu mensaje. Por favor, intentá de nuevo más tarde."

const defaultMaxTurns = 5

// Agent runs turns against the model and the tool catalog. Sessions are
// keyed by sender identity; the identity is also what scopes tool effects.
type Agent struct {
	llmClient    llm.Client
	model        string
	systemPrompt string
	maxTurns     int
	catalog      *tools.Catalog
	sessions     *session.Store
	journal      *session.Journal
	now          func() time.Time
}

// New creates an agent. journal may be nil to disable transcript journaling.
func New(llmClient llm.Client, llmCfg config.LLMConfig, agentCfg config.AgentConfig, catalog *tools.Catalog, sessions *session.Store, journal *session.Journal) *Agent {
	prompt := agentCfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	maxTurns := agentCfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &Agent{
		llmClient:    llmClient,
		model:        llmCfg.Model,
		systemPrompt: prompt,
		maxTurns:     maxTurns,
		catalog:      catalog,
		sessions:     sessions,
		journal:      journal,
		now:          time.Now,
	}
}

// Process handles one inbound message and returns the reply text. The sender
// identity keys the session and is bound to every tool invocation. imageURL
// may be empty.
//
// A model-call failure or an exhausted turn budget degrades the turn to an
// apology reply; neither is retried and neither returns an error. An error
// return means the state machine itself misbehaved.
func (a *Agent) Process(ctx context.Context, sender, text, imageURL string) (string, error) {
	sess := a.sessions.Get(sender)
	sess.BeginTurn()
	defer sess.EndTurn()

	a.seedSystemPrompt(sess)
	a.append(sess, userMessage(text, imageURL))

	type fsmContext struct {
		llmResponse  *openai.ChatCompletionResponse
		finalContent string
		lastError    error
		currentTurn  int
	}
	fsmCtx := &fsmContext{}

	fsm := stateless.NewStateMachine(StateReadyToCallLLM)

	// State: ReadyToCallLLM
	// Action: call the model with the full session history.
	fsm.Configure(StateReadyToCallLLM).
		PermitReentry(TriggerProcessInput).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if fsmCtx.currentTurn >= a.maxTurns {
				logger.L.Warn("max interaction turns reached", "sender", sender, "maxTurns", a.maxTurns)
				fsmCtx.finalContent = apologyMessage
				a.append(sess, assistantMessage(apologyMessage))
				return fsm.FireCtx(ctx, TriggerTurnDegraded)
			}
			fsmCtx.currentTurn++
			logger.L.Debug("calling model", "sender", sender, "turn", fsmCtx.currentTurn)

			llmResp, err := a.llmClient.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:    a.model,
				Messages: sess.Messages(),
				Tools:    a.catalog.Specs(),
			})
			if err != nil {
				logger.L.Error("model call failed", "sender", sender, "error", err)
				fsmCtx.finalContent = apologyMessage
				a.append(sess, assistantMessage(apologyMessage))
				return fsm.FireCtx(ctx, TriggerTurnDegraded)
			}
			if len(llmResp.Choices) == 0 {
				fsmCtx.lastError = errors.New("model response carried no choices")
				return fsm.FireCtx(ctx, TriggerErrorOccurred)
			}
			fsmCtx.llmResponse = &llmResp
			a.append(sess, llmResp.Choices[0].Message)

			if len(llmResp.Choices[0].Message.ToolCalls) > 0 {
				return fsm.FireCtx(ctx, TriggerLLMRequestedTools)
			}
			return fsm.FireCtx(ctx, TriggerLLMRespondedWithContent)
		}).
		Permit(TriggerLLMRequestedTools, StateExecutingTools).
		Permit(TriggerLLMRespondedWithContent, StateDone).
		Permit(TriggerTurnDegraded, StateDone).
		Permit(TriggerErrorOccurred, StateError)

	// State: ExecutingTools
	// Action: dispatch the requested tool calls in request order and append
	// every tool-result message before the next model call.
	fsm.Configure(StateExecutingTools).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if fsmCtx.llmResponse == nil || len(fsmCtx.llmResponse.Choices) == 0 {
				fsmCtx.lastError = errors.New("cannot execute tools, no model response available")
				return fsm.FireCtx(ctx, TriggerErrorOccurred)
			}
			for _, toolCall := range fsmCtx.llmResponse.Choices[0].Message.ToolCalls {
				a.append(sess, a.catalog.Dispatch(ctx, sender, toolCall))
			}
			return fsm.FireCtx(ctx, TriggerToolsExecutionCompleted)
		}).
		Permit(TriggerToolsExecutionCompleted, StateReadyToCallLLM).
		Permit(TriggerErrorOccurred, StateError)

	// State: Done
	// Action: the last assistant message is the reply for this turn.
	fsm.Configure(StateDone).
		OnEntry(func(_ context.Context, _ ...any) error {
			if fsmCtx.finalContent == "" && fsmCtx.llmResponse != nil && len(fsmCtx.llmResponse.Choices) > 0 {
				fsmCtx.finalContent = fsmCtx.llmResponse.Choices[0].Message.Content
			}
			return nil
		})

	fsm.Configure(StateError).
		OnEntry(func(_ context.Context, _ ...any) error {
			if fsmCtx.lastError == nil {
				fsmCtx.lastError = errors.New("reached error state without a specific error")
			}
			return nil
		})

	if fireErr := fsm.FireCtx(ctx, TriggerProcessInput); fireErr != nil {
		logger.L.Warn("fsm initial fire error", "error", fireErr)
	}

	currentState, err := fsm.State(ctx)
	if err != nil {
		return "", fmt.Errorf("fsm internal error: %w", err)
	}
	switch currentState {
	case StateDone:
		return fsmCtx.finalContent, nil
	case StateError:
		return "", fsmCtx.lastError
	default:
		return "", fmt.Errorf("fsm ended in an unexpected state: %v", currentState)
	}
}

// seedSystemPrompt prepends the system instructions when the session does
// not open with one. The current date is included at seed time so the model
// can resolve relative dates like "today".
func (a *Agent) seedSystemPrompt(sess *session.Session) {
	msgs := sess.Messages()
	if len(msgs) > 0 && msgs[0].Role == openai.ChatMessageRoleSystem {
		return
	}
	msg := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleSystem,
		Content: a.systemPrompt +
			"\n\nTene en cuenta para el uso de las herramientas que la fecha actual es: " +
			a.now().Format("2006-01-02"),
	}
	sess.Prepend(msg)
	a.journal.Record(sess.Key, msg.Role, msg.Content)
}

func (a *Agent) append(sess *session.Session, msg openai.ChatCompletionMessage) {
	sess.Append(msg)
	a.journal.Record(sess.Key, msg.Role, journalContent(msg))
}

func journalContent(msg openai.ChatCompletionMessage) string {
	if msg.Content != "" {
		return msg.Content
	}
	for _, part := range msg.MultiContent {
		if part.Type == openai.ChatMessagePartTypeText {
			return part.Text
		}
	}
	if len(msg.ToolCalls) > 0 {
		return fmt.Sprintf("[requested %d tool call(s)]", len(msg.ToolCalls))
	}
	return ""
}

func userMessage(text, imageURL string) openai.ChatCompletionMessage {
	if imageURL == "" {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}
	}
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: text},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: imageURL}},
		},
	}
}

func assistantMessage(content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}
}
