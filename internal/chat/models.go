package chat

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusFinal     MessageStatus = "final"
	StatusCancelled MessageStatus = "cancelled"
	StatusError     MessageStatus = "error"
)

// Message is one turn in a session's log. IDs are per-session sequence
// numbers assigned at insertion, so they are strictly increasing in
// insertion order even when completions land out of order.
type Message struct {
	ID         uint64        `json:"id"`
	Role       Role          `json:"role"`
	Content    string        `json:"content"`
	Status     MessageStatus `json:"status"`
	TokenCount int           `json:"token_count,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`

	// RespondsTo links an assistant message back to the user message that
	// triggered it. Nil for user and session-initiating system messages.
	RespondsTo *uint64 `json:"responds_to,omitempty"`
}

type RequestStatus string

const (
	RequestRunning    RequestStatus = "running"
	RequestCancelling RequestStatus = "cancelling"
	RequestDone       RequestStatus = "done"
)

// Request is the externally visible view of an in-flight generation request.
type Request struct {
	ID         string        `json:"request_id"`
	SessionID  string        `json:"session_id"`
	RespondsTo uint64        `json:"responds_to"`
	Status     RequestStatus `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
}

// SessionConfig carries per-session settings chosen at creation time.
// Zero values fall back to registry defaults.
type SessionConfig struct {
	Provider      string
	Model         string
	MaxConcurrent int
	SystemPrompt  string
}

// Snapshot is a consistent read-only copy of a session, safe to use
// concurrently with in-flight work on the session itself.
type Snapshot struct {
	SessionID     string    `json:"session_id"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	MaxConcurrent int       `json:"max_concurrent"`
	CreatedAt     time.Time `json:"created_at"`
	Messages      []Message `json:"messages"`
	InFlight      []Request `json:"in_flight"`
}

// SessionRecord is the persisted session metadata handed to a HistoryStore.
type SessionRecord struct {
	SessionID     string
	Provider      string
	Model         string
	MaxConcurrent int
	CreatedAt     time.Time
}
