package chat

import (
	"context"
	"testing"
	"time"
)

func testSession(t *testing.T, maxConcurrent int) *Session {
	t.Helper()
	return newSession("01TESTSESSIONID00000000000", SessionConfig{
		Provider:      "fake",
		Model:         "default",
		MaxConcurrent: maxConcurrent,
	}, time.Now())
}

func begin(t *testing.T, s *Session, content string) (Message, Request) {
	t.Helper()
	user := s.AppendUserMessage(content)
	req, err := s.BeginRequest(user.ID, func() {})
	if err != nil {
		t.Fatalf("begin request for %q: %v", content, err)
	}
	return user, req
}

func messageByID(t *testing.T, s *Session, id uint64) Message {
	t.Helper()
	for _, m := range s.Snapshot().Messages {
		if m.ID == id {
			return m
		}
	}
	t.Fatalf("message %d not found", id)
	return Message{}
}

func TestBeginRequest_BusyAtLimit(t *testing.T) {
	s := testSession(t, 2)

	_, r1 := begin(t, s, "first")
	_, r2 := begin(t, s, "second")
	if r1.ID == r2.ID {
		t.Fatalf("expected distinct request ids, both %q", r1.ID)
	}

	user := s.AppendUserMessage("third")
	if _, err := s.BeginRequest(user.ID, func() {}); err != ErrBusy {
		t.Fatalf("expected ErrBusy at the limit, got %v", err)
	}

	// Finishing one frees the slot.
	if _, ok := s.CompleteRequest(r1.ID, "done", 3); !ok {
		t.Fatalf("complete r1 should finalize")
	}
	if _, err := s.BeginRequest(user.ID, func() {}); err != nil {
		t.Fatalf("begin after completion: %v", err)
	}
}

func TestBeginRequest_UnknownUserMessage(t *testing.T) {
	s := testSession(t, 1)
	if _, err := s.BeginRequest(42, func() {}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMessageIDs_InsertionOrderSurvivesCompletionOrder(t *testing.T) {
	s := testSession(t, 2)

	userA, reqA := begin(t, s, "A")
	userB, reqB := begin(t, s, "B")

	// B completes before A.
	if _, ok := s.CompleteRequest(reqB.ID, "reply B", 2); !ok {
		t.Fatalf("complete B should finalize")
	}
	if _, ok := s.CompleteRequest(reqA.ID, "reply A", 2); !ok {
		t.Fatalf("complete A should finalize")
	}

	msgs := s.Snapshot().Messages
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID <= msgs[i-1].ID {
			t.Fatalf("ids not strictly increasing: %d then %d", msgs[i-1].ID, msgs[i].ID)
		}
	}

	// Placeholders sit at their insertion position, not completion position.
	phA := messageByID(t, s, reqA.RespondsTo+1)
	phB := messageByID(t, s, reqB.RespondsTo+1)
	if phA.Content != "reply A" || phB.Content != "reply B" {
		t.Fatalf("replies landed on wrong placeholders: %q / %q", phA.Content, phB.Content)
	}
	if *phA.RespondsTo != userA.ID || *phB.RespondsTo != userB.ID {
		t.Fatalf("responds_to broken: %d->%d, %d->%d", *phA.RespondsTo, userA.ID, *phB.RespondsTo, userB.ID)
	}
}

func TestCompleteRequest_IdempotentAfterCancel(t *testing.T) {
	s := testSession(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	user := s.AppendUserMessage("hello")
	req, err := s.BeginRequest(user.ID, cancel)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	if !s.CancelRequest(req.ID) {
		t.Fatalf("cancel should find the running request")
	}
	if ctx.Err() == nil {
		t.Fatalf("cancel token should have fired")
	}
	// Second cancel is idempotent.
	if !s.CancelRequest(req.ID) {
		t.Fatalf("double cancel should stay a no-op success")
	}

	// Provider unwinds with ctx.Canceled; the placeholder finalizes cancelled.
	msg, ok := s.FailRequest(req.ID, FailCancelled)
	if !ok || msg.Status != StatusCancelled {
		t.Fatalf("expected cancelled finalization, got ok=%v status=%s", ok, msg.Status)
	}

	before := s.Snapshot().Messages

	// A late completion for the same request must be ignored.
	if _, ok := s.CompleteRequest(req.ID, "late success", 9); ok {
		t.Fatalf("late completion must be a no-op")
	}
	after := s.Snapshot().Messages
	if len(before) != len(after) {
		t.Fatalf("late completion altered the log")
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("message %d changed: %+v -> %+v", before[i].ID, before[i], after[i])
		}
	}
}

func TestCompleteRequest_CancellationWinsOverLateSuccess(t *testing.T) {
	s := testSession(t, 1)

	user := s.AppendUserMessage("hello")
	req, err := s.BeginRequest(user.ID, func() {})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	if !s.CancelRequest(req.ID) {
		t.Fatalf("cancel should succeed")
	}

	// Provider finishes anyway; the first terminal transition is cancel.
	msg, ok := s.CompleteRequest(req.ID, "finished anyway", 5)
	if !ok {
		t.Fatalf("finalization should still happen once")
	}
	if msg.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", msg.Status)
	}
	if msg.Content != "" {
		t.Fatalf("cancelled placeholder should not carry the late reply, got %q", msg.Content)
	}
}

func TestFailRequest_OpaqueMarkers(t *testing.T) {
	s := testSession(t, 2)

	_, r1 := begin(t, s, "first")
	_, r2 := begin(t, s, "second")

	m1, ok := s.FailRequest(r1.ID, FailTimeout)
	if !ok || m1.Status != StatusError {
		t.Fatalf("timeout should finalize as error, got ok=%v status=%s", ok, m1.Status)
	}
	m2, ok := s.FailRequest(r2.ID, FailProvider)
	if !ok || m2.Status != StatusError {
		t.Fatalf("provider failure should finalize as error, got ok=%v status=%s", ok, m2.Status)
	}
	if m1.Content == m2.Content {
		t.Fatalf("timeout and provider error markers should differ")
	}
}

func TestCancelAll_ReleasesDoneChannels(t *testing.T) {
	s := testSession(t, 2)

	var cancelled int
	user := s.AppendUserMessage("one")
	req1, _ := s.BeginRequest(user.ID, func() { cancelled++ })
	user2 := s.AppendUserMessage("two")
	req2, _ := s.BeginRequest(user2.ID, func() { cancelled++ })

	chans := s.CancelAll()
	if len(chans) != 2 || cancelled != 2 {
		t.Fatalf("expected both requests cancelled, got %d chans, %d tokens fired", len(chans), cancelled)
	}

	s.FailRequest(req1.ID, FailCancelled)
	s.FailRequest(req2.ID, FailCancelled)
	for _, done := range chans {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("done channel never closed")
		}
	}
	if s.InFlightCount() != 0 {
		t.Fatalf("expected empty in-flight set, got %d", s.InFlightCount())
	}
}

func TestSystemPrompt_SeedsLog(t *testing.T) {
	s := newSession("01TESTSESSIONID00000000001", SessionConfig{
		MaxConcurrent: 1,
		SystemPrompt:  "be terse",
	}, time.Now())

	msgs := s.Snapshot().Messages
	if len(msgs) != 1 || msgs[0].Role != RoleSystem || msgs[0].ID != 1 {
		t.Fatalf("expected a single system message with id 1, got %+v", msgs)
	}

	user := s.AppendUserMessage("hi")
	if user.ID != 2 {
		t.Fatalf("expected user message id 2, got %d", user.ID)
	}
}
