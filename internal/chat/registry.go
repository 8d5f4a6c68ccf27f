package chat

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Registry creates, looks up, lists, and deletes sessions. Its mutex
// guards only the map structure; per-session work never blocks on it
// beyond the lookup, so the registry lock and session locks never nest
// in a way that can deadlock.
type Registry struct {
	store    HistoryStore // optional; nil disables persistence
	defaults SessionConfig

	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string // creation order
}

func NewRegistry(store HistoryStore, defaults SessionConfig) *Registry {
	if defaults.MaxConcurrent <= 0 {
		defaults.MaxConcurrent = 1
	}
	return &Registry{
		store:    store,
		defaults: defaults,
		sessions: make(map[string]*Session),
	}
}

// CreateSession allocates an empty session and registers it. Zero-value
// config fields fall back to the registry defaults.
func (r *Registry) CreateSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if cfg.Provider == "" {
		cfg.Provider = r.defaults.Provider
	}
	if cfg.Model == "" {
		cfg.Model = r.defaults.Model
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = r.defaults.MaxConcurrent
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = r.defaults.SystemPrompt
	}

	sid, err := NewSessionID()
	if err != nil {
		return nil, err
	}
	sess := newSession(sid, cfg, time.Now())

	if r.store != nil {
		rec := SessionRecord{
			SessionID:     sid,
			Provider:      cfg.Provider,
			Model:         cfg.Model,
			MaxConcurrent: cfg.MaxConcurrent,
			CreatedAt:     sess.createdAt,
		}
		if err := r.store.CreateSession(ctx, rec); err != nil {
			return nil, err
		}
		// The session-initiating system message is part of the log.
		for _, m := range sess.Snapshot().Messages {
			if err := r.store.AppendMessage(ctx, sid, m); err != nil {
				log.Printf("chat: persist system message session=%s: %v", sid, err)
			}
		}
	}

	r.mu.Lock()
	r.sessions[sid] = sess
	r.order = append(r.order, sid)
	r.mu.Unlock()
	return sess, nil
}

// Get returns the live session, rehydrating from the history store when
// the session is not in memory (e.g. after a restart).
func (r *Registry) Get(ctx context.Context, sessionID string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if ok {
		return sess, nil
	}
	if r.store == nil {
		return nil, ErrNotFound
	}

	rec, msgs, err := r.store.LoadSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[sessionID]; ok {
		// Lost the rehydration race; the first one in wins.
		return existing, nil
	}
	sess = newSessionFromLog(rec, msgs)
	r.sessions[sessionID] = sess
	r.order = append(r.order, sessionID)
	return sess, nil
}

// List returns live session ids in creation order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for _, id := range r.order {
		if _, ok := r.sessions[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Delete removes a session. With force=false it returns ErrBusy while
// requests are in flight; with force=true it cancels them all and waits
// until every one reaches done before removing the session.
func (r *Registry) Delete(ctx context.Context, sessionID string, force bool) error {
	r.mu.RLock()
	sess, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	if sess.InFlightCount() > 0 {
		if !force {
			return ErrBusy
		}
		for _, done := range sess.CancelAll() {
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.DeleteSession(ctx, sessionID); err != nil {
			log.Printf("chat: delete persisted session=%s: %v", sessionID, err)
		}
	}
	return nil
}
