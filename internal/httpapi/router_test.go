package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatcore/internal/ai"
	"github.com/suPer8Hu/chatcore/internal/chat"
	"github.com/suPer8Hu/chatcore/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type instantProvider struct{}

func (instantProvider) Chat(_ context.Context, messages []ai.Message) (ai.Reply, error) {
	last := messages[len(messages)-1]
	return ai.Reply{Content: "echo: " + last.Content, TokenCount: 2}, nil
}

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	providers := ai.NewRegistry()
	providers.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		_ = model
		return instantProvider{}, nil
	})
	registry := chat.NewRegistry(nil, chat.SessionConfig{Provider: "fake", MaxConcurrent: 1})
	ctrl := chat.NewController(registry, providers, chat.Options{})
	return NewRouter(config.Config{}, ctrl)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reqBody *strings.Reader
	if body == "" {
		reqBody = strings.NewReader("")
	} else {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reqBody)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: bad envelope %q: %v", method, path, w.Body.String(), err)
	}
	return w, env
}

func TestChatFlow_SubmitThenPollUntilFinal(t *testing.T) {
	r := testRouter(t)

	w, env := do(t, r, http.MethodPost, "/chat/sessions", `{"provider":"fake"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create session: status %d body %s", w.Code, w.Body.String())
	}
	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil || created.SessionID == "" {
		t.Fatalf("no session id in %s", env.Data)
	}

	w, env = do(t, r, http.MethodPost, "/chat/messages",
		`{"session_id":"`+created.SessionID+`","message":"Hello"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("submit: status %d body %s", w.Code, w.Body.String())
	}
	var accepted struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(env.Data, &accepted); err != nil || accepted.RequestID == "" {
		t.Fatalf("no request id in %s", env.Data)
	}

	var snap chat.Snapshot
	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatalf("reply never finalized: %+v", snap)
		}
		_, env = do(t, r, http.MethodGet, "/chat/sessions/"+created.SessionID, "")
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			t.Fatalf("bad snapshot: %v", err)
		}
		if len(snap.Messages) == 2 && snap.Messages[1].Status == chat.StatusFinal {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if snap.Messages[1].Content != "echo: Hello" {
		t.Fatalf("unexpected reply %q", snap.Messages[1].Content)
	}
	if snap.Messages[1].RespondsTo == nil || *snap.Messages[1].RespondsTo != snap.Messages[0].ID {
		t.Fatalf("assistant message not linked to user message: %+v", snap.Messages[1])
	}
}

func TestChatFlow_NotFoundPaths(t *testing.T) {
	r := testRouter(t)

	w, _ := do(t, r, http.MethodGet, "/chat/sessions/does-not-exist", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("get unknown session: status %d", w.Code)
	}

	w, _ = do(t, r, http.MethodPost, "/chat/requests/does-not-exist/cancel", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("cancel unknown request: status %d", w.Code)
	}

	w, _ = do(t, r, http.MethodPost, "/chat/messages", `{"session_id":"nope","message":"hi"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("submit to unknown session: status %d", w.Code)
	}
}

func TestChatFlow_DeleteSession(t *testing.T) {
	r := testRouter(t)

	_, env := do(t, r, http.MethodPost, "/chat/sessions", `{}`)
	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("create: %v", err)
	}

	w, _ := do(t, r, http.MethodDelete, "/chat/sessions/"+created.SessionID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status %d", w.Code)
	}

	w, _ = do(t, r, http.MethodGet, "/chat/sessions/"+created.SessionID, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("deleted session still reachable: status %d", w.Code)
	}
}

func TestAuth_RequiredWhenConfigured(t *testing.T) {
	providers := ai.NewRegistry()
	registry := chat.NewRegistry(nil, chat.SessionConfig{Provider: "fake", MaxConcurrent: 1})
	ctrl := chat.NewController(registry, providers, chat.Options{})
	r := NewRouter(config.Config{JWTSecret: "test-secret"}, ctrl)

	req := httptest.NewRequest(http.MethodGet, "/chat/sessions", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	// /ping stays open.
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("ping should not require auth, got %d", w.Code)
	}
}
