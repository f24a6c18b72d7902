package tools

import (
	"context"
	"encoding/json"

	"github.com/pampalabs/gabriela/internal/storage"

	"github.com/google/uuid"
)

// ExpenseTrackerTool records a new expense for the calling identity. The
// owner is always the session's sender, never a model-supplied argument.
type ExpenseTrackerTool struct {
	Store storage.Store
}

func (t *ExpenseTrackerTool) Name() string { return "expense_tracker" }

func (t *ExpenseTrackerTool) Description() string {
	return "Tracks expenses for team members. Records a new expense with its type, date and total value."
}

func (t *ExpenseTrackerTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"expense_type": {"type": "string", "description": "Category of the expense, e.g. lunch, taxi."},
			"date": {"type": "string", "description": "Date of the expense (YYYY-MM-DD)."},
			"total_value": {"type": "number", "description": "Total amount spent."}
		},
		"required": ["expense_type", "date", "total_value"]
	}`)
}

func (t *ExpenseTrackerTool) Invoke(ctx context.Context, identity string, args json.RawMessage) Result {
	// total_value decodes through a pointer so an absent field is
	// distinguishable from a legitimate zero.
	var in struct {
		ExpenseType string   `json:"expense_type"`
		Date        string   `json:"date"`
		TotalValue  *float64 `json:"total_value"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return failf("Error: could not parse arguments for %s: %s", t.Name(), err)
	}
	if in.ExpenseType == "" || in.Date == "" || in.TotalValue == nil {
		return failf("Error: expense_type, date and total_value are required")
	}

	expense := storage.Expense{
		ID:          uuid.New(),
		Owner:       identity,
		ExpenseType: in.ExpenseType,
		Date:        in.Date,
		TotalValue:  *in.TotalValue,
		State:       storage.ExpensePending,
	}
	if err := t.Store.AddExpense(ctx, expense); err != nil {
		return failf("Error adding expense: %s", err)
	}
	return ok("Expense added successfully")
}

// GetExpensesTool lists the calling identity's pending expenses. It takes no
// arguments; the owner filter comes from the session.
type GetExpensesTool struct {
	Store storage.Store
}

func (t *GetExpensesTool) Name() string { return "get_expenses" }

func (t *GetExpensesTool) Description() string {
	return "Retrieves the pending expenses of the requesting team member."
}

func (t *GetExpensesTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *GetExpensesTool) Invoke(ctx context.Context, identity string, _ json.RawMessage) Result {
	expenses, err := t.Store.GetExpenses(ctx, identity)
	if err != nil {
		return failf("Error retrieving expenses: %s", err)
	}
	if len(expenses) == 0 {
		return ok("No pending expenses found")
	}
	return okJSON(expenses)
}

// CancelPendingExpensesTool marks all of the calling identity's pending
// expenses finished. Idempotent: a second call is a no-op.
type CancelPendingExpensesTool struct {
	Store storage.Store
}

func (t *CancelPendingExpensesTool) Name() string { return "cancel_pending_expenses" }

func (t *CancelPendingExpensesTool) Description() string {
	return "Cancels all pending expenses of the requesting team member."
}

func (t *CancelPendingExpensesTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *CancelPendingExpensesTool) Invoke(ctx context.Context, identity string, _ json.RawMessage) Result {
	n, err := t.Store.CancelPendingExpenses(ctx, identity)
	if err != nil {
		return failf("Error cancelling pending expenses: %s", err)
	}
	if n == 0 {
		return ok("There were no pending expenses to cancel")
	}
	return okf("All pending expenses have been cancelled successfully (%d)", n)
}
