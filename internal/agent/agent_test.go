package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pampalabs/gabriela/internal/config"
	"github.com/pampalabs/gabriela/internal/session"
	"github.com/pampalabs/gabriela/internal/storage"
	"github.com/pampalabs/gabriela/internal/tools"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

type mockLLM struct {
	calls    []openai.ChatCompletionResponse
	requests []openai.ChatCompletionRequest
	err      error
}

func (m *mockLLM) CreateChatCompletion(_ context.Context, r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.requests = append(m.requests, r)
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	if len(m.calls) == 0 {
		panic("mockLLM: no more responses configured")
	}
	resp := m.calls[0]
	m.calls = m.calls[1:]
	return resp, nil
}

func contentResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
		}},
	}
}

func toolCallResponse(calls ...openai.ToolCall) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, ToolCalls: calls},
		}},
	}
}

func toolCall(id, name, args string) openai.ToolCall {
	return openai.ToolCall{
		ID:       id,
		Type:     openai.ToolTypeFunction,
		Function: openai.FunctionCall{Name: name, Arguments: args},
	}
}

type testRig struct {
	agent    *Agent
	llm      *mockLLM
	sessions *session.Store
	catalog  *tools.Catalog
	store    *storage.SQLiteStore
}

func newTestRig(t *testing.T, llmClient *mockLLM, agentCfg config.AgentConfig) *testRig {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "gabriela.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	catalog := tools.DefaultCatalog(store)
	sessions := session.NewStore()
	ag := New(llmClient, config.LLMConfig{Model: "gpt"}, agentCfg, catalog, sessions, nil)
	return &testRig{agent: ag, llm: llmClient, sessions: sessions, catalog: catalog, store: store}
}

func TestProcess_LLMRespondsDirectly(t *testing.T) {
	rig := newTestRig(t, &mockLLM{calls: []openai.ChatCompletionResponse{
		contentResponse("Hola! Soy Gabriela."),
	}}, config.AgentConfig{})

	out, err := rig.agent.Process(context.Background(), "whatsapp:+111", "hola", "")
	require.NoError(t, err)
	require.Equal(t, "Hola! Soy Gabriela.", out)

	msgs := rig.sessions.Get("whatsapp:+111").Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	require.Equal(t, openai.ChatMessageRoleUser, msgs[1].Role)
	require.Equal(t, openai.ChatMessageRoleAssistant, msgs[2].Role)
}

func TestProcess_FirstModelCallSeesSingleSystemMessage(t *testing.T) {
	rig := newTestRig(t, &mockLLM{calls: []openai.ChatCompletionResponse{
		contentResponse("ok"),
		contentResponse("ok again"),
	}}, config.AgentConfig{})

	_, err := rig.agent.Process(context.Background(), "S1", "hola", "")
	require.NoError(t, err)
	_, err = rig.agent.Process(context.Background(), "S1", "otra cosa", "")
	require.NoError(t, err)

	for _, req := range rig.llm.requests {
		systemCount := 0
		for _, m := range req.Messages {
			if m.Role == openai.ChatMessageRoleSystem {
				systemCount++
			}
		}
		require.Equal(t, 1, systemCount)
		require.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	}
}

func TestProcess_ToolCallRoundTrip(t *testing.T) {
	rig := newTestRig(t, &mockLLM{calls: []openai.ChatCompletionResponse{
		toolCallResponse(toolCall("call_1", "expense_tracker", `{"expense_type":"lunch","date":"2024-06-01","total_value":42.50}`)),
		contentResponse("Listo, registré tu gasto de 42.50."),
	}}, config.AgentConfig{})

	out, err := rig.agent.Process(context.Background(), "S1", "log a $42.50 lunch expense for today", "")
	require.NoError(t, err)
	require.Equal(t, "Listo, registré tu gasto de 42.50.", out)

	// the expense landed in the store, owned by the sender
	expenses, err := rig.store.GetExpenses(context.Background(), "S1")
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	require.Equal(t, "S1", expenses[0].Owner)
	require.Equal(t, 42.50, expenses[0].TotalValue)
	require.Equal(t, storage.ExpensePending, expenses[0].State)

	// the second model call saw the tool result before answering
	require.Len(t, rig.llm.requests, 2)
	secondReq := rig.llm.requests[1].Messages
	last := secondReq[len(secondReq)-1]
	require.Equal(t, openai.ChatMessageRoleTool, last.Role)
	require.Equal(t, "call_1", last.ToolCallID)
}

func TestProcess_MultipleToolCallsDispatchedInOrder(t *testing.T) {
	rig := newTestRig(t, &mockLLM{calls: []openai.ChatCompletionResponse{
		toolCallResponse(
			toolCall("call_1", "set_meal", `{"meal":"pizza","date":"2024-06-01","team_member":"Lauta"}`),
			toolCall("call_2", "get_meals", `{"date":"2024-06-01"}`),
		),
		contentResponse("Hecho."),
	}}, config.AgentConfig{})

	out, err := rig.agent.Process(context.Background(), "S1", "set pizza for saturday and show me the plan", "")
	require.NoError(t, err)
	require.Equal(t, "Hecho.", out)

	// call_2 ran after call_1, so the get saw the freshly written meal
	msgs := rig.sessions.Get("S1").Messages()
	var toolResults []openai.ChatCompletionMessage
	for _, m := range msgs {
		if m.Role == openai.ChatMessageRoleTool {
			toolResults = append(toolResults, m)
		}
	}
	require.Len(t, toolResults, 2)
	require.Equal(t, "call_1", toolResults[0].ToolCallID)
	require.Equal(t, "call_2", toolResults[1].ToolCallID)

	var meals []storage.MealPlan
	require.NoError(t, json.Unmarshal([]byte(toolResults[1].Content), &meals))
	require.Len(t, meals, 1)
	require.Equal(t, "pizza", meals[0].Meal)
}

func TestProcess_UnknownToolContinuesLoop(t *testing.T) {
	rig := newTestRig(t, &mockLLM{calls: []openai.ChatCompletionResponse{
		toolCallResponse(toolCall("call_1", "time_machine", `{}`)),
		contentResponse("No tengo esa herramienta, perdón."),
	}}, config.AgentConfig{})

	out, err := rig.agent.Process(context.Background(), "S1", "viajar al pasado", "")
	require.NoError(t, err)
	require.Equal(t, "No tengo esa herramienta, perdón.", out)

	msgs := rig.sessions.Get("S1").Messages()
	var found bool
	for _, m := range msgs {
		if m.Role == openai.ChatMessageRoleTool && m.ToolCallID == "call_1" {
			require.Contains(t, m.Content, "time_machine")
			found = true
		}
	}
	require.True(t, found, "failure tool-result must be in the session")
}

func TestProcess_ModelFailureDegradesToApology(t *testing.T) {
	rig := newTestRig(t, &mockLLM{err: context.DeadlineExceeded}, config.AgentConfig{})

	out, err := rig.agent.Process(context.Background(), "S1", "hola", "")
	require.NoError(t, err)
	require.Equal(t, apologyMessage, out)

	// exactly one attempt, no retry
	require.Len(t, rig.llm.requests, 1)

	// the user's message is not lost
	msgs := rig.sessions.Get("S1").Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, "hola", msgs[1].Content)
	require.Equal(t, apologyMessage, msgs[2].Content)
}

func TestProcess_TurnCeilingStopsToolLoop(t *testing.T) {
	// the model keeps asking for tools forever
	responses := make([]openai.ChatCompletionResponse, 10)
	for i := range responses {
		responses[i] = toolCallResponse(toolCall("call_x", "get_meals", `{}`))
	}
	rig := newTestRig(t, &mockLLM{calls: responses}, config.AgentConfig{MaxTurns: 3})

	out, err := rig.agent.Process(context.Background(), "S1", "loop forever", "")
	require.NoError(t, err)
	require.Equal(t, apologyMessage, out)
	require.Len(t, rig.llm.requests, 3)
}

func TestProcess_ImageMessageBecomesMultiContent(t *testing.T) {
	rig := newTestRig(t, &mockLLM{calls: []openai.ChatCompletionResponse{
		contentResponse("Linda foto."),
	}}, config.AgentConfig{})

	_, err := rig.agent.Process(context.Background(), "S1", "mirá esto", "https://example.com/x.jpg")
	require.NoError(t, err)

	userMsg := rig.sessions.Get("S1").Messages()[1]
	require.Empty(t, userMsg.Content)
	require.Len(t, userMsg.MultiContent, 2)
	require.Equal(t, openai.ChatMessagePartTypeText, userMsg.MultiContent[0].Type)
	require.Equal(t, "mirá esto", userMsg.MultiContent[0].Text)
	require.Equal(t, openai.ChatMessagePartTypeImageURL, userMsg.MultiContent[1].Type)
	require.Equal(t, "https://example.com/x.jpg", userMsg.MultiContent[1].ImageURL.URL)
}

func TestProcess_SystemPromptPrependedToExistingHistory(t *testing.T) {
	rig := newTestRig(t, &mockLLM{calls: []openai.ChatCompletionResponse{
		contentResponse("ok"),
	}}, config.AgentConfig{})

	// history that somehow lacks a leading system message
	sess := rig.sessions.Get("S1")
	sess.Append(openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: "mensaje viejo"})

	_, err := rig.agent.Process(context.Background(), "S1", "hola", "")
	require.NoError(t, err)

	msgs := sess.Messages()
	require.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role, "system instructions must be first")
	require.Equal(t, "mensaje viejo", msgs[1].Content)
	require.Equal(t, "hola", msgs[2].Content)
}

// slowLLM answers every request after a short pause and flags any two
// requests in flight at once.
type slowLLM struct {
	active  atomic.Int32
	overlap atomic.Bool
}

func (m *slowLLM) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if m.active.Add(1) > 1 {
		m.overlap.Store(true)
	}
	defer m.active.Add(-1)
	time.Sleep(time.Millisecond)
	return contentResponse("ok"), nil
}

func TestProcess_SameSenderTurnsAreSerialized(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "gabriela.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	llmClient := &slowLLM{}
	sessions := session.NewStore()
	ag := New(llmClient, config.LLMConfig{Model: "gpt"}, config.AgentConfig{}, tools.DefaultCatalog(store), sessions, nil)

	const turns = 8
	errs := make(chan error, turns)
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ag.Process(context.Background(), "S1", fmt.Sprintf("mensaje %d", i), "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.False(t, llmClient.overlap.Load(), "two turns of the same sender ran concurrently")

	// with turns serialized, each user message is immediately followed by its reply
	msgs := sessions.Get("S1").Messages()
	require.Len(t, msgs, 1+2*turns)
	require.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	for i := 1; i < len(msgs); i += 2 {
		require.Equal(t, openai.ChatMessageRoleUser, msgs[i].Role)
		require.Equal(t, openai.ChatMessageRoleAssistant, msgs[i+1].Role)
	}
}

func TestProcess_SessionsAreIsolatedPerSender(t *testing.T) {
	rig := newTestRig(t, &mockLLM{calls: []openai.ChatCompletionResponse{
		toolCallResponse(toolCall("call_1", "expense_tracker", `{"expense_type":"lunch","date":"2024-06-01","total_value":10}`)),
		contentResponse("anotado"),
		toolCallResponse(toolCall("call_2", "get_expenses", `{}`)),
		contentResponse("no tenés gastos"),
	}}, config.AgentConfig{})

	_, err := rig.agent.Process(context.Background(), "A", "gasto de 10", "")
	require.NoError(t, err)
	_, err = rig.agent.Process(context.Background(), "B", "mis gastos?", "")
	require.NoError(t, err)

	// B's get_expenses ran with B's identity and saw nothing of A's
	msgs := rig.sessions.Get("B").Messages()
	for _, m := range msgs {
		if m.Role == openai.ChatMessageRoleTool {
			require.Equal(t, "No pending expenses found", m.Content)
		}
	}
}
