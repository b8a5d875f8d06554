// Package session holds per-conversation state. A Session carries the
// message history and a weak reference (id only) to the most recent pending
// approval request — never the request itself, which stays owned by the
// approval ledger.
//
// The engine is stateless per turn; the transport owns loading and saving
// sessions between turns through a Store.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/bdobrica/Torii/internal/torii/ops"
)

// Message roles.
const (
	RoleHuman     = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the conversation state for one session key. It is created on
// the first message for that key and mutated every turn.
type Session struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`

	// PendingRequestID is the id of the approval request most recently
	// created in this session, used to resolve bare "approve"/"reject"
	// replies. Weak reference: id only.
	PendingRequestID string `json:"pending_request_id,omitempty"`

	// LastOperationKind is the kind of the last write request.
	LastOperationKind ops.Kind `json:"last_operation_kind,omitempty"`

	StartedAt time.Time `json:"started_at"`
	LastMsgAt time.Time `json:"last_msg_at"`
}

// New creates an empty session for the given key.
func New(id string, now time.Time) *Session {
	return &Session{ID: id, StartedAt: now, LastMsgAt: now}
}

// Append records one message and bumps LastMsgAt.
func (s *Session) Append(role, content string, at time.Time) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: at})
	s.LastMsgAt = at
}

// History converts the message buffer into the responder's chat format.
func (s *Session) History() []ops.ChatMessage {
	out := make([]ops.ChatMessage, len(s.Messages))
	for i, m := range s.Messages {
		out[i] = ops.ChatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// Store persists sessions between turns. Load returns (nil, nil) when no
// session exists for the key; callers create one with New.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

// MemoryStore is a volatile in-process Store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	return &cp, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	m.sessions[s.ID] = &cp
	return nil
}
