package ai

import "context"

// StreamResult carries the tail of a stream: the usage reported by the
// provider's final frame, or the error that ended the stream early.
type StreamResult struct {
	TokenCount int
	Err        error
}

// StreamProvider is an optional interface for providers that can deliver
// partial text. The chunk channel closes when streaming ends; the result
// channel then yields exactly one StreamResult. Consumers accumulate the
// chunks, since only the final text enters the session log.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan StreamResult)
}
