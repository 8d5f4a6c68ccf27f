package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenRouterProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	SiteURL string
	AppName string
	Client  *http.Client
}

type openRouterMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterChatReq struct {
	Model    string          `json:"model"`
	Messages []openRouterMsg `json:"messages"`
	Stream   bool            `json:"stream"`
}

type openRouterChatResp struct {
	Choices []struct {
		Message openRouterMsg `json:"message"`
	} `json:"choices"`
	Usage struct {
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openRouterStreamResp struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	// Usage arrives on the final data frame only.
	Usage *struct {
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		SiteURL: siteURL,
		AppName: appName,
		Client:  &http.Client{},
	}
}

func openRouterMessages(messages []Message) []openRouterMsg {
	out := make([]openRouterMsg, 0, len(messages))
	for _, m := range messages {
		out = append(out, openRouterMsg{Role: m.Role, Content: m.Content})
	}
	return out
}

func (p *OpenRouterProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	if p.SiteURL != "" {
		req.Header.Set("HTTP-Referer", p.SiteURL)
	}
	if p.AppName != "" {
		req.Header.Set("X-Title", p.AppName)
	}
}

func (p *OpenRouterProvider) Chat(ctx context.Context, messages []Message) (Reply, error) {
	if p.Client == nil {
		return Reply{}, errors.New("openrouter: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return Reply{}, errors.New("openrouter: api key is required")
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		return Reply{}, errors.New("openrouter: model is required")
	}

	reqBody := openRouterChatReq{
		Model:    model,
		Stream:   false,
		Messages: openRouterMessages(messages),
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return Reply{}, err
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return Reply{}, err
	}
	p.setHeaders(req)

	resp, err := p.Client.Do(req)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return Reply{}, fmt.Errorf("openrouter: %s", msg)
	}

	var decoded openRouterChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Reply{}, err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return Reply{}, errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return Reply{}, errors.New("openrouter: empty response")
	}
	return Reply{
		Content:    decoded.Choices[0].Message.Content,
		TokenCount: decoded.Usage.CompletionTokens,
	}, nil
}

// StreamChat streams assistant content chunks via SSE. The result channel
// yields one StreamResult once the chunk channel closes, carrying the
// completion token count from the final usage frame when the provider
// reports one.
func (p *OpenRouterProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan StreamResult) {
	chunks := make(chan string, 16)
	results := make(chan StreamResult, 1)

	go func() {
		defer close(chunks)
		defer close(results)

		if p.Client == nil {
			results <- StreamResult{Err: errors.New("openrouter: http client is nil")}
			return
		}
		if strings.TrimSpace(p.APIKey) == "" {
			results <- StreamResult{Err: errors.New("openrouter: api key is required")}
			return
		}
		model := strings.TrimSpace(p.Model)
		if model == "" {
			results <- StreamResult{Err: errors.New("openrouter: model is required")}
			return
		}

		reqBody := openRouterChatReq{
			Model:    model,
			Stream:   true,
			Messages: openRouterMessages(messages),
		}

		b, err := json.Marshal(reqBody)
		if err != nil {
			results <- StreamResult{Err: err}
			return
		}

		url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			results <- StreamResult{Err: err}
			return
		}
		p.setHeaders(req)

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
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
			msg := strings.TrimSpace(string(body))
			if msg == "" {
				msg = fmt.Sprintf("status %d", resp.StatusCode)
			}
			results <- StreamResult{Err: fmt.Errorf("openrouter: %s", msg)}
			return
		}

		sc := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 2*1024*1024)

		tokenCount := 0
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				results <- StreamResult{TokenCount: tokenCount}
				return
			}
			var decoded openRouterStreamResp
			if err := json.Unmarshal([]byte(data), &decoded); err != nil {
				results <- StreamResult{Err: err}
				return
			}
			if decoded.Error != nil && decoded.Error.Message != "" {
				results <- StreamResult{Err: errors.New(decoded.Error.Message)}
				return
			}
			if decoded.Usage != nil {
				tokenCount = decoded.Usage.CompletionTokens
			}
			if len(decoded.Choices) == 0 {
				continue
			}
			delta := decoded.Choices[0].Delta.Content
			if delta != "" {
				chunks <- delta
			}
		}

		if err := sc.Err(); err != nil {
			results <- StreamResult{Err: err}
			return
		}
		results <- StreamResult{TokenCount: tokenCount}
	}()

	return chunks, results
}
