package chat

// ContextWindow is a bounded, chronological projection of a message log,
// ready to be handed to an inference provider as the prompt.
type ContextWindow struct {
	Messages []Message
	Size     int
}

// messageSize is a cheap character-based cost estimate. Budgets are
// specified in characters; a per-message constant covers role and
// framing overhead the provider adds around each turn.
func messageSize(m Message) int {
	return len(m.Content) + 8
}

// BuildContext derives a bounded prompt from a message snapshot. A leading
// system message is always pinned first and charged against the budget.
// The rest of the window is the most recent run of final messages that
// fits, walked backwards and returned in chronological order. Pending,
// cancelled, and error messages carry no usable content and are skipped.
//
// The function is pure: the same (snapshot, budget) always yields the
// same window.
func BuildContext(messages []Message, budget int) ContextWindow {
	var win ContextWindow

	start := 0
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		win.Messages = append(win.Messages, messages[0])
		win.Size += messageSize(messages[0])
		budget -= messageSize(messages[0])
		start = 1
	}

	var tail []Message
	for i := len(messages) - 1; i >= start; i-- {
		m := messages[i]
		if m.Status != StatusFinal {
			continue
		}
		sz := messageSize(m)
		if sz > budget {
			break
		}
		tail = append(tail, m)
		win.Size += sz
		budget -= sz
	}

	// tail was collected newest-first; flip it back to chronological.
	for i := len(tail) - 1; i >= 0; i-- {
		win.Messages = append(win.Messages, tail[i])
	}
	return win
}
