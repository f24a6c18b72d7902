package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"github.com/google/uuid"
)

// SQLiteStore is the embedded-file backend. Every operation goes through a
// single *sql.DB handle; the driver serializes concurrent writers.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database file and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, ErrMissingPath
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

// NewSQLiteStoreWithDB wraps an existing handle, running migrations on it.
func NewSQLiteStoreWithDB(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS expenses (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			expense_type TEXT NOT NULL,
			date TEXT NOT NULL,
			total_value REAL NOT NULL,
			state TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS meals (
			id TEXT PRIMARY KEY,
			meal TEXT NOT NULL,
			date TEXT NOT NULL,
			toppings TEXT,
			team_member TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS out_of_office (
			id TEXT PRIMARY KEY,
			team_member TEXT NOT NULL,
			date TEXT NOT NULL,
			reason TEXT
		);
	`)
	return err
}

// DB exposes the underlying handle so the session transcript can share it.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) AddExpense(ctx context.Context, e Expense) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (id, owner, expense_type, date, total_value, state) VALUES (?,?,?,?,?,?);`,
		e.ID.String(), e.Owner, e.ExpenseType, e.Date, e.TotalValue, e.State)
	return err
}

func (s *SQLiteStore) GetExpenses(ctx context.Context, owner string) ([]Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, expense_type, date, total_value, state FROM expenses
		 WHERE owner = ? AND state = ? ORDER BY rowid ASC;`, owner, ExpensePending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		var e Expense
		var id string
		if err := rows.Scan(&id, &e.Owner, &e.ExpenseType, &e.Date, &e.TotalValue, &e.State); err != nil {
			return nil, err
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CancelPendingExpenses(ctx context.Context, owner string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET state = ? WHERE owner = ? AND state = ?;`,
		ExpenseFinished, owner, ExpensePending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) AddMeal(ctx context.Context, m MealPlan) error {
	var toppings any
	if len(m.Toppings) > 0 {
		b, err := json.Marshal(m.Toppings)
		if err != nil {
			return err
		}
		toppings = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meals (id, meal, date, toppings, team_member) VALUES (?,?,?,?,?);`,
		m.ID.String(), m.Meal, m.Date, toppings, m.TeamMember)
	return err
}

func (s *SQLiteStore) GetMeals(ctx context.Context, date string) ([]MealPlan, error) {
	query := `SELECT id, meal, date, toppings, team_member FROM meals`
	args := []any{}
	if date != "" {
		query += ` WHERE date = ?`
		args = append(args, date)
	}
	query += ` ORDER BY rowid ASC;`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MealPlan
	for rows.Next() {
		var m MealPlan
		var id string
		var toppings sql.NullString
		if err := rows.Scan(&id, &m.Meal, &m.Date, &toppings, &m.TeamMember); err != nil {
			return nil, err
		}
		if m.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if toppings.Valid && toppings.String != "" {
			if err := json.Unmarshal([]byte(toppings.String), &m.Toppings); err != nil {
				return nil, err
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddOutOfOffice(ctx context.Context, o OutOfOfficeEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO out_of_office (id, team_member, date, reason) VALUES (?,?,?,?);`,
		o.ID.String(), o.TeamMember, o.Date, o.Reason)
	return err
}

func (s *SQLiteStore) GetOutOfOffice(ctx context.Context, teamMember, date string) ([]OutOfOfficeEntry, error) {
	query := `SELECT id, team_member, date, reason FROM out_of_office WHERE 1=1`
	args := []any{}
	if teamMember != "" {
		query += ` AND team_member = ?`
		args = append(args, teamMember)
	}
	if date != "" {
		query += ` AND date = ?`
		args = append(args, date)
	}
	query += ` ORDER BY rowid ASC;`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutOfOfficeEntry
	for rows.Next() {
		var o OutOfOfficeEntry
		var id string
		var reason sql.NullString
		if err := rows.Scan(&id, &o.TeamMember, &o.Date, &reason); err != nil {
			return nil, err
		}
		if o.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		o.Reason = reason.String
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
