package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOllamaChat_ParsesReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaChatReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stream {
			t.Errorf("Chat must not request streaming")
		}
		_ = json.NewEncoder(w).Encode(ollamaChatResp{
			Message:   ollamaMsg{Role: "assistant", Content: "hello back"},
			EvalCount: 7,
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "test-model")
	reply, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hello"}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply.Content != "hello back" || reply.TokenCount != 7 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestOllamaChat_HonorsCancellation(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server can detect the client disconnect
		// and cancel r.Context(); otherwise srv.Close deadlocks.
		_, _ = io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "test-model")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := p.Chat(ctx, []Message{{Role: "user", Content: "hang"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOllamaStreamChat_AccumulatesChunksAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lines := []ollamaStreamResp{
			{Message: ollamaMsg{Content: "hel"}},
			{Message: ollamaMsg{Content: "lo"}},
			{Done: true, EvalCount: 12},
		}
		enc := json.NewEncoder(w)
		for _, l := range lines {
			_ = enc.Encode(l)
		}
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "test-model")
	chunks, results := p.StreamChat(context.Background(), []Message{{Role: "user", Content: "hi"}})

	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
	}
	select {
	case res := <-results:
		if res.Err != nil {
			t.Fatalf("stream: %v", res.Err)
		}
		if res.TokenCount != 12 {
			t.Fatalf("done frame usage lost: got %d", res.TokenCount)
		}
	case <-time.After(time.Second):
		t.Fatalf("result channel never settled")
	}
	if b.String() != "hello" {
		t.Fatalf("accumulated %q", b.String())
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Get(context.Background(), "nope", "model"); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestRegistry_ResolvesByName(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Ollama", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		return NewOllamaProvider("http://localhost:1", model), nil
	})

	p, err := reg.Get(context.Background(), "  ollama ", "m")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if op, ok := p.(*OllamaProvider); !ok || op.Model != "m" {
		t.Fatalf("unexpected provider %+v", p)
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "ollama" {
		t.Fatalf("unexpected names %v", names)
	}
}
