package ai

import "context"

// Message is one prompt turn handed to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply is a completed generation. TokenCount is the provider-reported
// completion token count, 0 when the provider does not report one.
type Reply struct {
	Content    string
	TokenCount int
}

// Provider turns a prompt into generated text. Implementations must honor
// ctx cancellation promptly; the chat core relies on it for mid-flight
// aborts and deadlines.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (Reply, error)
}
