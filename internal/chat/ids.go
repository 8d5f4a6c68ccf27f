package chat

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewSessionID returns a 26-char ULID. Lexicographic order follows
// creation time, which keeps session listings and DB indexes tidy.
func NewSessionID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.DefaultEntropy())
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewRequestID returns a process-unique id for an in-flight request.
func NewRequestID() string {
	return uuid.NewString()
}
