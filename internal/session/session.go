// Package session holds the per-sender conversation state. A session is the
// ordered message history for one thread key; append is the only mutation.
package session

import (
	"sync"

	"github.com/sashabaranov/go-openai"
)

// Session is one sender's ordered message history. The embedded turn lock
// serializes overlapping turns from the same sender; without it a rapid
// double-send could interleave appends.
type Session struct {
	Key string

	turnMu   sync.Mutex
	mu       sync.Mutex
	messages []openai.ChatCompletionMessage
}

// BeginTurn blocks until no other turn is running on this session.
func (s *Session) BeginTurn() { s.turnMu.Lock() }

// EndTurn releases the turn lock.
func (s *Session) EndTurn() { s.turnMu.Unlock() }

// Append adds a message to the end of the history.
func (s *Session) Append(msg openai.ChatCompletionMessage) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

// Prepend inserts a message at the head of the history. Only the system
// instruction seed uses it; everything else appends.
func (s *Session) Prepend(msg openai.ChatCompletionMessage) {
	s.mu.Lock()
	s.messages = append([]openai.ChatCompletionMessage{msg}, s.messages...)
	s.mu.Unlock()
}

// Messages returns a copy of the history in order.
func (s *Session) Messages() []openai.ChatCompletionMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]openai.ChatCompletionMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the history.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Store hands out sessions keyed by thread key, creating them lazily on
// first use. Sessions live for the process lifetime.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Get returns the session for key, creating it if absent.
func (st *Store) Get(key string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[key]
	if !ok {
		s = &Session{Key: key}
		st.sessions[key] = s
	}
	return s
}
