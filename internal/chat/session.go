package chat

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// Session owns one message log plus the set of in-flight requests against
// it. Every mutation goes through the session mutex, so two concurrent
// calls on the same session serialize while different sessions never
// contend with each other.
type Session struct {
	id            string
	provider      string
	model         string
	maxConcurrent int
	createdAt     time.Time

	mu       sync.RWMutex
	nextSeq  uint64
	messages []Message
	inFlight map[string]*inflight
}

type inflight struct {
	id          string
	respondsTo  uint64
	placeholder uint64
	status      RequestStatus
	cancel      context.CancelFunc
	startedAt   time.Time
	done        chan struct{}
}

func newSession(id string, cfg SessionConfig, createdAt time.Time) *Session {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	s := &Session{
		id:            id,
		provider:      cfg.Provider,
		model:         cfg.Model,
		maxConcurrent: cfg.MaxConcurrent,
		createdAt:     createdAt,
		inFlight:      make(map[string]*inflight),
	}
	if cfg.SystemPrompt != "" {
		s.appendLocked(RoleSystem, cfg.SystemPrompt, StatusFinal, nil)
	}
	return s
}

// newSessionFromLog rebuilds a session from persisted messages. Pending
// placeholders are never persisted, so the log comes back clean. Stores
// may return messages in persist order, which under concurrent requests
// is completion order, so the log is re-sorted by sequence id to restore
// insertion order.
func newSessionFromLog(rec *SessionRecord, msgs []Message) *Session {
	s := newSession(rec.SessionID, SessionConfig{
		Provider:      rec.Provider,
		Model:         rec.Model,
		MaxConcurrent: rec.MaxConcurrent,
	}, rec.CreatedAt)
	s.messages = append(s.messages, msgs...)
	sort.Slice(s.messages, func(i, j int) bool { return s.messages[i].ID < s.messages[j].ID })
	for _, m := range msgs {
		if m.ID > s.nextSeq {
			s.nextSeq = m.ID
		}
	}
	return s
}

func (s *Session) ID() string       { return s.id }
func (s *Session) Provider() string { return s.provider }
func (s *Session) Model() string    { return s.model }

// appendLocked assigns the next sequence id and appends. Caller must hold
// s.mu (or have exclusive access during construction).
func (s *Session) appendLocked(role Role, content string, status MessageStatus, respondsTo *uint64) Message {
	s.nextSeq++
	m := Message{
		ID:         s.nextSeq,
		Role:       role,
		Content:    content,
		Status:     status,
		CreatedAt:  time.Now(),
		RespondsTo: respondsTo,
	}
	s.messages = append(s.messages, m)
	return m
}

func (s *Session) indexOfLocked(id uint64) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// AppendUserMessage appends a final user message and returns a copy.
func (s *Session) AppendUserMessage(content string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(RoleUser, content, StatusFinal, nil)
}

// BeginRequest accepts a generation request against an existing user
// message: it appends a pending assistant placeholder and registers the
// in-flight entry. Returns ErrBusy at the concurrency limit. The cancel
// func is fired later by CancelRequest.
func (s *Session) BeginRequest(userMessageID uint64, cancel context.CancelFunc) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.inFlight) >= s.maxConcurrent {
		return Request{}, ErrBusy
	}
	i := s.indexOfLocked(userMessageID)
	if i < 0 || s.messages[i].Role != RoleUser {
		return Request{}, ErrNotFound
	}

	respondsTo := userMessageID
	placeholder := s.appendLocked(RoleAssistant, "", StatusPending, &respondsTo)

	req := &inflight{
		id:          NewRequestID(),
		respondsTo:  userMessageID,
		placeholder: placeholder.ID,
		status:      RequestRunning,
		cancel:      cancel,
		startedAt:   time.Now(),
		done:        make(chan struct{}),
	}
	s.inFlight[req.id] = req
	return s.requestViewLocked(req), nil
}

// CompleteRequest finalizes the placeholder with the generated reply and
// removes the request. A request no longer in flight is a benign no-op
// (already cancelled or completed), reported via ok=false. If cancellation
// was requested before the provider returned, the cancel wins and the
// placeholder finalizes as cancelled even on a late success.
func (s *Session) CompleteRequest(requestID, content string, tokenCount int) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.inFlight[requestID]
	if !ok {
		return Message{}, false
	}
	if req.status == RequestCancelling {
		return s.finalizeLocked(req, StatusCancelled, "", 0)
	}
	return s.finalizeLocked(req, StatusFinal, content, tokenCount)
}

// FailRequest finalizes the placeholder for a request that did not produce
// a reply. Same idempotence rule as CompleteRequest. The stored content is
// an opaque marker, never the raw provider error.
func (s *Session) FailRequest(requestID string, kind FailureKind) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.inFlight[requestID]
	if !ok {
		return Message{}, false
	}
	if kind == FailCancelled || req.status == RequestCancelling {
		return s.finalizeLocked(req, StatusCancelled, "", 0)
	}
	return s.finalizeLocked(req, StatusError, kind.marker(), 0)
}

func (s *Session) finalizeLocked(req *inflight, status MessageStatus, content string, tokenCount int) (Message, bool) {
	i := s.indexOfLocked(req.placeholder)
	if i < 0 || s.messages[i].Status != StatusPending {
		// Should be unreachable: a placeholder is finalized exactly once
		// and only while its request is in flight.
		log.Printf("chat: invariant violation: session=%s request=%s placeholder=%d missing or already finalized",
			s.id, req.id, req.placeholder)
		delete(s.inFlight, req.id)
		req.status = RequestDone
		close(req.done)
		return Message{}, false
	}

	s.messages[i].Status = status
	s.messages[i].Content = content
	s.messages[i].TokenCount = tokenCount

	delete(s.inFlight, req.id)
	req.status = RequestDone
	close(req.done)
	return s.messages[i], true
}

// CancelRequest signals the request's cancellation token and marks it
// cancelling. The placeholder is finalized later, when the provider call
// actually returns. Unknown ids (already done) are benign no-ops.
// Cancelling twice is idempotent.
func (s *Session) CancelRequest(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.inFlight[requestID]
	if !ok {
		return false
	}
	if req.status != RequestCancelling {
		req.status = RequestCancelling
		req.cancel()
	}
	return true
}

// CancelAll signals every in-flight request and returns their done
// channels so the caller can wait for the provider calls to unwind.
func (s *Session) CancelAll() []<-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chans []<-chan struct{}
	for _, req := range s.inFlight {
		if req.status != RequestCancelling {
			req.status = RequestCancelling
			req.cancel()
		}
		chans = append(chans, req.done)
	}
	return chans
}

func (s *Session) InFlightCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.inFlight)
}

func (s *Session) requestViewLocked(req *inflight) Request {
	return Request{
		ID:         req.id,
		SessionID:  s.id,
		RespondsTo: req.respondsTo,
		Status:     req.status,
		StartedAt:  req.startedAt,
	}
}

// Snapshot returns a deep copy of the session state for polling reads.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		SessionID:     s.id,
		Provider:      s.provider,
		Model:         s.model,
		MaxConcurrent: s.maxConcurrent,
		CreatedAt:     s.createdAt,
		Messages:      append([]Message(nil), s.messages...),
	}
	for _, req := range s.inFlight {
		snap.InFlight = append(snap.InFlight, s.requestViewLocked(req))
	}
	sort.Slice(snap.InFlight, func(i, j int) bool {
		if snap.InFlight[i].StartedAt.Equal(snap.InFlight[j].StartedAt) {
			return snap.InFlight[i].ID < snap.InFlight[j].ID
		}
		return snap.InFlight[i].StartedAt.Before(snap.InFlight[j].StartedAt)
	})
	return snap
}
