package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/suPer8Hu/chatcore/internal/ai"
)

// Options tunes a Controller. Zero values mean: no persistence, no
// notifications, default context budget, no request deadline.
type Options struct {
	Store          HistoryStore
	Notifier       Notifier
	ContextBudget  int // characters
	RequestTimeout time.Duration
}

const defaultContextBudget = 8000

// Controller is the orchestration entry point between the transport layer
// and the inference providers. Submit accepts a request and returns
// immediately; each accepted request runs in its own goroutine that calls
// the provider and re-enters the owning session to finalize state.
type Controller struct {
	registry  *Registry
	providers *ai.Registry
	store     HistoryStore
	notifier  Notifier

	contextBudget  int
	requestTimeout time.Duration

	// index resolves a request id to its owning session. Entries live
	// until the session is deleted, so cancelling an already-done request
	// stays a benign no-op rather than a NotFound.
	mu    sync.RWMutex
	index map[string]string
}

func NewController(registry *Registry, providers *ai.Registry, opts Options) *Controller {
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = defaultContextBudget
	}
	return &Controller{
		registry:       registry,
		providers:      providers,
		store:          opts.Store,
		notifier:       opts.Notifier,
		contextBudget:  opts.ContextBudget,
		requestTimeout: opts.RequestTimeout,
		index:          make(map[string]string),
	}
}

func (c *Controller) CreateSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	return c.registry.CreateSession(ctx, cfg)
}

func (c *Controller) ListSessions() []string {
	return c.registry.List()
}

// Status returns a read-only snapshot for polling transports.
func (c *Controller) Status(ctx context.Context, sessionID string) (Snapshot, error) {
	sess, err := c.registry.Get(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// DeleteSession removes a session (see Registry.Delete) and drops its
// request index entries.
func (c *Controller) DeleteSession(ctx context.Context, sessionID string, force bool) error {
	if err := c.registry.Delete(ctx, sessionID, force); err != nil {
		return err
	}
	c.mu.Lock()
	for rid, sid := range c.index {
		if sid == sessionID {
			delete(c.index, rid)
		}
	}
	c.mu.Unlock()
	return nil
}

// Submit appends the user message, accepts a generation request against
// it, and kicks off the provider call in the background. It returns the
// request id as soon as the request is accepted; the caller can submit a
// second message before the first resolves. A Busy result is reported,
// never retried internally.
func (c *Controller) Submit(ctx context.Context, sessionID, content string) (string, error) {
	sess, err := c.registry.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}

	userMsg := sess.AppendUserMessage(content)
	c.persist(ctx, sessionID, userMsg)

	// Generation outlives the transport request, so the token derives
	// from the background context, not from ctx.
	var gctx context.Context
	var cancel context.CancelFunc
	if c.requestTimeout > 0 {
		gctx, cancel = context.WithTimeout(context.Background(), c.requestTimeout)
	} else {
		gctx, cancel = context.WithCancel(context.Background())
	}

	req, err := sess.BeginRequest(userMsg.ID, cancel)
	if err != nil {
		cancel()
		return "", err
	}

	c.mu.Lock()
	c.index[req.ID] = sessionID
	c.mu.Unlock()

	go c.run(gctx, cancel, sess, req)
	return req.ID, nil
}

// Cancel signals the request's cancellation token. The provider call is
// never force-killed; the placeholder finalizes once it returns.
func (c *Controller) Cancel(ctx context.Context, requestID string) error {
	c.mu.RLock()
	sessionID, ok := c.index[requestID]
	c.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	sess, err := c.registry.Get(ctx, sessionID)
	if err != nil {
		return ErrNotFound
	}
	sess.CancelRequest(requestID)
	return nil
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, sess *Session, req Request) {
	defer cancel()
	start := time.Now()

	win := BuildContext(sess.Snapshot().Messages, c.contextBudget)
	prompt := make([]ai.Message, 0, len(win.Messages))
	for _, m := range win.Messages {
		prompt = append(prompt, ai.Message{Role: string(m.Role), Content: m.Content})
	}

	provider, err := c.providers.Get(ctx, sess.Provider(), sess.Model())
	var reply ai.Reply
	if err == nil {
		reply, err = generate(ctx, provider, prompt)
	}

	var msg Message
	var finalized bool
	switch {
	case err == nil:
		msg, finalized = sess.CompleteRequest(req.ID, reply.Content, reply.TokenCount)
	case errors.Is(err, context.DeadlineExceeded):
		msg, finalized = sess.FailRequest(req.ID, FailTimeout)
	case errors.Is(err, context.Canceled):
		msg, finalized = sess.FailRequest(req.ID, FailCancelled)
	default:
		log.Printf("chat: provider error session=%s request=%s: %v", sess.ID(), req.ID, err)
		msg, finalized = sess.FailRequest(req.ID, FailProvider)
	}
	if !finalized {
		// Lost the finalization race; the first terminal transition won.
		return
	}

	bctx := context.Background()
	c.persist(bctx, sess.ID(), msg)

	ev := RequestEvent{
		RequestID:  req.ID,
		SessionID:  sess.ID(),
		MessageID:  msg.ID,
		Status:     msg.Status,
		TokenCount: msg.TokenCount,
		ElapsedMS:  time.Since(start).Milliseconds(),
	}
	if err := c.notifier.RequestFinished(bctx, ev); err != nil {
		log.Printf("chat: notify request=%s: %v", req.ID, err)
	}
}

// generate prefers the streaming interface when the provider has one,
// accumulating chunks so only the final text reaches the session.
func generate(ctx context.Context, p ai.Provider, msgs []ai.Message) (ai.Reply, error) {
	sp, ok := p.(ai.StreamProvider)
	if !ok {
		return p.Chat(ctx, msgs)
	}

	chunks, results := sp.StreamChat(ctx, msgs)
	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
	}
	res := <-results
	if res.Err != nil {
		return ai.Reply{}, res.Err
	}
	return ai.Reply{Content: b.String(), TokenCount: res.TokenCount}, nil
}

func (c *Controller) persist(ctx context.Context, sessionID string, m Message) {
	if c.store == nil {
		return
	}
	if err := c.store.AppendMessage(ctx, sessionID, m); err != nil {
		log.Printf("chat: persist message session=%s id=%d: %v", sessionID, m.ID, err)
	}
}
