// Package storage persists the records produced by the tool catalog.
// Two interchangeable backends exist: an embedded SQLite file and a hosted
// MongoDB database. Callers only see the Store interface.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/pampalabs/gabriela/internal/config"

	"github.com/google/uuid"
)

// Expense states.
const (
	ExpensePending  = "pending"
	ExpenseFinished = "finished"
)

// Expense is a record of money spent by a team member. Owner is always the
// session's sender identity, never a model-supplied value.
type Expense struct {
	ID          uuid.UUID `json:"id" bson:"_id"`
	Owner       string    `json:"owner" bson:"owner"`
	ExpenseType string    `json:"expense_type" bson:"expense_type"`
	Date        string    `json:"date" bson:"date"`
	TotalValue  float64   `json:"total_value" bson:"total_value"`
	State       string    `json:"state" bson:"state"`
}

// MealPlan records what meal is planned for a date.
type MealPlan struct {
	ID         uuid.UUID `json:"id" bson:"_id"`
	Meal       string    `json:"meal" bson:"meal"`
	Date       string    `json:"date" bson:"date"`
	Toppings   []string  `json:"toppings,omitempty" bson:"toppings,omitempty"`
	TeamMember string    `json:"team_member" bson:"team_member"`
}

// OutOfOfficeEntry records that a team member is unavailable on a date.
type OutOfOfficeEntry struct {
	ID         uuid.UUID `json:"id" bson:"_id"`
	TeamMember string    `json:"team_member" bson:"team_member"`
	Date       string    `json:"date" bson:"date"`
	Reason     string    `json:"reason,omitempty" bson:"reason,omitempty"`
}

// Store is the persistence contract shared by all backends. Reads filter;
// writes insert a single record; CancelPendingExpenses is the only bulk
// update and is scoped to the owner.
type Store interface {
	AddExpense(ctx context.Context, e Expense) error
	// GetExpenses returns the pending expenses of one owner.
	GetExpenses(ctx context.Context, owner string) ([]Expense, error)
	// CancelPendingExpenses marks the owner's pending expenses finished and
	// reports how many records changed. Calling it again is a no-op.
	CancelPendingExpenses(ctx context.Context, owner string) (int64, error)

	AddMeal(ctx context.Context, m MealPlan) error
	// GetMeals returns meal plans for the given date, or all when date is empty.
	GetMeals(ctx context.Context, date string) ([]MealPlan, error)

	AddOutOfOffice(ctx context.Context, o OutOfOfficeEntry) error
	// GetOutOfOffice filters by team member and/or date; empty values match all.
	GetOutOfOffice(ctx context.Context, teamMember, date string) ([]OutOfOfficeEntry, error)

	Close() error
}

var (
	// ErrMissingURI is returned when the mongo backend is selected without a
	// connection string. Misconfiguration is fatal at construction time.
	ErrMissingURI = errors.New("storage: mongo backend requires a connection URI")
	// ErrMissingPath is the sqlite equivalent.
	ErrMissingPath = errors.New("storage: sqlite backend requires a database path")
)

// New constructs the Store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		return NewSQLiteStore(cfg.Path)
	case config.BackendMongo:
		return NewMongoStore(ctx, cfg.URI, cfg.Database)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}
