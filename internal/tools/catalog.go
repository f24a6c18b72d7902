package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pampalabs/gabriela/internal/logger"
	"github.com/pampalabs/gabriela/internal/storage"

	"github.com/sashabaranov/go-openai"
)

// ErrToolNotFound is returned by Get for names outside the catalog.
var ErrToolNotFound = errors.New("tool not found")

// Catalog is the fixed set of tools offered to the model. Registration order
// is preserved so the specs sent to the model are stable.
type Catalog struct {
	order  []Tool
	byName map[string]Tool
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{byName: make(map[string]Tool)}
}

// DefaultCatalog registers the full tool set backed by the given store.
func DefaultCatalog(store storage.Store) *Catalog {
	c := NewCatalog()
	c.Register(&ExpenseTrackerTool{Store: store})
	c.Register(&GetExpensesTool{Store: store})
	c.Register(&CancelPendingExpensesTool{Store: store})
	c.Register(&SetMealTool{Store: store})
	c.Register(&GetMealsTool{Store: store})
	c.Register(&SetOutOfOfficeTool{Store: store})
	c.Register(&GetOutOfOfficeTool{Store: store})
	return c
}

// Register adds a tool; a duplicate name replaces the earlier entry.
func (c *Catalog) Register(t Tool) {
	if _, exists := c.byName[t.Name()]; !exists {
		c.order = append(c.order, t)
	} else {
		for i, existing := range c.order {
			if existing.Name() == t.Name() {
				c.order[i] = t
				break
			}
		}
	}
	c.byName[t.Name()] = t
}

// Get retrieves a tool by name.
func (c *Catalog) Get(name string) (Tool, error) {
	t, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Specs returns the catalog as chat-completion tool definitions.
func (c *Catalog) Specs() []openai.Tool {
	specs := make([]openai.Tool, 0, len(c.order))
	for _, t := range c.order {
		specs = append(specs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return specs
}

// Dispatch resolves and invokes one requested tool call and folds the
// outcome into a tool-result message. Unknown names and invocation failures
// are reported in the message content, never raised.
func (c *Catalog) Dispatch(ctx context.Context, identity string, call openai.ToolCall) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		ToolCallID: call.ID,
		Name:       call.Function.Name,
	}

	tool, err := c.Get(call.Function.Name)
	if err != nil {
		logger.L.Warn("model requested unknown tool", "tool", call.Function.Name)
		msg.Content = fmt.Sprintf("Error: tool %s is not available", call.Function.Name)
		return msg
	}

	result := tool.Invoke(ctx, identity, json.RawMessage(call.Function.Arguments))
	if result.IsError {
		logger.L.Warn("tool invocation failed", "tool", call.Function.Name, "error", result.Content)
	} else {
		logger.L.Debug("tool invoked", "tool", call.Function.Name, "identity", identity)
	}
	msg.Content = result.Content
	return msg
}
