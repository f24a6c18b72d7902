package session

import (
	"database/sql"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/pampalabs/gabriela/internal/logger"
)

// Entry is one journaled message.
type Entry struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal is an append-only transcript of session messages, kept in SQLite
// for after-the-fact inspection. The in-memory session stays authoritative;
// a journal write failure is logged and otherwise ignored.
type Journal struct {
	db *sql.DB
}

// NewJournal creates the messages table on the given handle if needed.
func NewJournal(db *sql.DB) (*Journal, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		role TEXT,
		content TEXT,
		created_at DATETIME
	);`); err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Record appends one message to the transcript.
func (j *Journal) Record(sessionID, role, content string) {
	if j == nil {
		return
	}
	_, err := j.db.Exec(`INSERT INTO messages (session_id, role, content, created_at) VALUES (?,?,?,?);`,
		sessionID, role, content, time.Now().UTC())
	if err != nil {
		logger.L.Warn("session journal write failed", "session", sessionID, "error", err)
	}
}

// List returns all journaled messages of a session in chronological order.
func (j *Journal) List(sessionID string) ([]Entry, error) {
	rows, err := j.db.Query(`SELECT id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY id ASC;`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Role, &e.Content, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
