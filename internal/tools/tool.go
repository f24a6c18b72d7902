// Package tools implements the closed catalog of operations the model may
// request: expense tracking, meal planning and out-of-office registration.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is one named, schema-validated operation. The calling identity is
// passed per invocation, never stored on the tool, so a single instance is
// safe across concurrent sessions.
type Tool interface {
	Name() string
	Description() string
	// Parameters is the JSON schema of the argument object.
	Parameters() json.RawMessage
	// Invoke runs the tool for the given calling identity. It never returns a
	// Go error: every failure, storage included, comes back as a failure
	// Result so the conversation can continue.
	Invoke(ctx context.Context, identity string, args json.RawMessage) Result
}

// Result is the outcome of a tool invocation, success or failure. Either way
// it is surfaced to the model as a tool-result message.
type Result struct {
	Content string
	IsError bool
}

func ok(content string) Result {
	return Result{Content: content}
}

func okf(format string, args ...any) Result {
	return Result{Content: fmt.Sprintf(format, args...)}
}

func failf(format string, args ...any) Result {
	return Result{Content: fmt.Sprintf(format, args...), IsError: true}
}

// okJSON serializes records for the model; a marshal failure degrades to a
// failure Result like any other.
func okJSON(v any) Result {
	b, err := json.Marshal(v)
	if err != nil {
		return failf("Error serializing result: %s", err)
	}
	return ok(string(b))
}
