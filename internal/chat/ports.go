package chat

import "context"

// HistoryStore is the persistence adapter for session logs. The core
// treats it as eventually-consistent durable storage, never as a
// synchronization mechanism: live state lives in the Session, the store
// only rehydrates it and records finalized messages.
type HistoryStore interface {
	CreateSession(ctx context.Context, rec SessionRecord) error
	// LoadSession returns ErrNotFound for unknown sessions.
	LoadSession(ctx context.Context, sessionID string) (*SessionRecord, []Message, error)
	AppendMessage(ctx context.Context, sessionID string, m Message) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// RequestEvent describes a terminal request transition, published for
// external consumers (websocket pushers, analytics, billing).
type RequestEvent struct {
	RequestID  string        `json:"request_id"`
	SessionID  string        `json:"session_id"`
	MessageID  uint64        `json:"message_id"`
	Status     MessageStatus `json:"status"`
	TokenCount int           `json:"token_count,omitempty"`
	ElapsedMS  int64         `json:"elapsed_ms"`
}

// Notifier receives terminal request events. Implementations must not
// block the finalization path for long; errors are logged, not retried.
type Notifier interface {
	RequestFinished(ctx context.Context, ev RequestEvent) error
}

// NopNotifier drops events. Used when no broker is configured.
type NopNotifier struct{}

func (NopNotifier) RequestFinished(context.Context, RequestEvent) error { return nil }
