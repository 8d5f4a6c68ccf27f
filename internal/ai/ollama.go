package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type OllamaProvider struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3:latest"
	}
	return &OllamaProvider{
		BaseURL: baseURL,
		Model:   model,
		// No client timeout: the caller's ctx bounds each generation.
		Client: &http.Client{},
	}
}

type ollamaChatReq struct {
	Model    string      `json:"model"`
	Messages []ollamaMsg `json:"messages"`
	Stream   bool        `json:"stream"`
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResp struct {
	Message   ollamaMsg `json:"message"`
	EvalCount int       `json:"eval_count"`
	Error     string    `json:"error,omitempty"`
}

type ollamaStreamResp struct {
	Message   ollamaMsg `json:"message"`
	Done      bool      `json:"done"`
	EvalCount int       `json:"eval_count"`
	Error     string    `json:"error,omitempty"`
}

func ollamaMessages(messages []Message) []ollamaMsg {
	out := make([]ollamaMsg, 0, len(messages))
	for _, m := range messages {
		out = append(out, ollamaMsg{Role: m.Role, Content: m.Content})
	}
	return out
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (Reply, error) {
	if p.Client == nil {
		return Reply{}, errors.New("ollama: http client is nil")
	}

	reqBody := ollamaChatReq{
		Model:    p.Model,
		Stream:   false,
		Messages: ollamaMessages(messages),
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return Reply{}, err
	}

	url := fmt.Sprintf("%s/api/chat", p.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return Reply{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Reply{}, fmt.Errorf("ollama: status %d", resp.StatusCode)
	}

	var decoded ollamaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Reply{}, err
	}
	if decoded.Error != "" {
		return Reply{}, errors.New(decoded.Error)
	}
	return Reply{Content: decoded.Message.Content, TokenCount: decoded.EvalCount}, nil
}

// StreamChat streams assistant content chunks. It returns immediately;
// the chunk channel closes when streaming ends, then the result channel
// yields one StreamResult carrying the done frame's eval_count or the
// error that cut the stream short.
func (p *OllamaProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan StreamResult) {
	chunks := make(chan string, 16)
	results := make(chan StreamResult, 1)

	go func() {
		defer close(chunks)
		defer close(results)

		if p.Client == nil {
			results <- StreamResult{Err: errors.New("ollama: http client is nil")}
			return
		}

		reqBody := ollamaChatReq{
			Model:    p.Model,
			Stream:   true,
			Messages: ollamaMessages(messages),
		}

		b, err := json.Marshal(reqBody)
		if err != nil {
			results <- StreamResult{Err: err}
			return
		}

		url := fmt.Sprintf("%s/api/chat", p.BaseURL)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			results <- StreamResult{Err: err}
			return
		}
		req.Header.Set("Content-Type", "application/json")

		// Streaming can be long; ctx controls the overall deadline.
		if p.Client.Timeout != 0 && p.Client.Timeout < 30*time.Second {
			p.Client.Timeout = 0
		}

		resp, err := p.Client.Do(req)
		if err != nil {
			results <- StreamResult{Err: err}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			results <- StreamResult{Err: fmt.Errorf("ollama: status %d", resp.StatusCode)}
			return
		}

		sc := bufio.NewScanner(resp.Body)
		// Increase scanner buffer for long JSON lines.
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 2*1024*1024)

		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}

			var decoded ollamaStreamResp
			if err := json.Unmarshal(line, &decoded); err != nil {
				results <- StreamResult{Err: err}
				return
			}
			if decoded.Error != "" {
				results <- StreamResult{Err: errors.New(decoded.Error)}
				return
			}

			if decoded.Message.Content != "" {
				chunks <- decoded.Message.Content
			}

			if decoded.Done {
				results <- StreamResult{TokenCount: decoded.EvalCount}
				return
			}
		}

		if err := sc.Err(); err != nil {
			results <- StreamResult{Err: err}
			return
		}
		// Stream ended without a done frame; no usage to report.
		results <- StreamResult{}
	}()

	return chunks, results
}
