package chat

import "errors"

var (
	// ErrNotFound covers unknown session and request ids.
	ErrNotFound = errors.New("chat: not found")

	// ErrBusy means the per-session in-flight limit is reached, or a
	// delete was attempted while requests are still running.
	ErrBusy = errors.New("chat: too many in-flight requests")
)

// FailureKind classifies why a request did not produce a final reply.
type FailureKind string

const (
	FailCancelled FailureKind = "cancelled"
	FailTimeout   FailureKind = "timeout"
	FailProvider  FailureKind = "provider_error"
)

// marker returns the opaque content stored on the placeholder message.
// Raw provider errors are logged, never shown to end users.
func (k FailureKind) marker() string {
	switch k {
	case FailTimeout:
		return "[generation timed out]"
	case FailProvider:
		return "[generation failed]"
	default:
		return ""
	}
}
