package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	memectModeCompletion = "completion"
	memectModeChat       = "chat"
	memectSystemPrompt   = "You are a helpful assistant."
)

// memectCompleter talks to a self-hosted inference endpoint. Two wire shapes
// exist: a plain completion body answered with {"response": ...}, and a chat
// body answered with {"choices": [{"message": {"content": ...}}]}. The reply
// parser accepts either shape regardless of the request mode.
type memectCompleter struct {
	endpoint    string
	mode        string
	model       string
	temperature float64
	maxLength   int
	client      *http.Client
}

type memectCompletionRequest struct {
	Prompt      string  `json:"prompt"`
	MaxLength   int     `json:"max_length"`
	Temperature float64 `json:"temperature"`
}

type memectChatRequest struct {
	Model       string      `json:"model,omitempty"`
	Messages    []memectMsg `json:"messages"`
	Temperature float64     `json:"temperature"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
}

type memectMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type memectResponse struct {
	Response *string `json:"response"`
	Choices  []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *memectCompleter) Name() string {
	return "memect"
}

func (p *memectCompleter) buildBody(prompt string) interface{} {
	if p.mode == memectModeChat {
		return memectChatRequest{
			Model: p.model,
			Messages: []memectMsg{
				{Role: "system", Content: memectSystemPrompt},
				{Role: "user", Content: prompt},
			},
			Temperature: p.temperature,
			MaxTokens:   p.maxLength,
		}
	}
	return memectCompletionRequest{
		Prompt:      prompt,
		MaxLength:   p.maxLength,
		Temperature: p.temperature,
	}
}

func (p *memectCompleter) Complete(ctx context.Context, prompt string) (*Completion, error) {
	if p.endpoint == "" {
		return nil, ErrUnavailable
	}
	data, err := json.Marshal(p.buildBody(prompt))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("memect request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return parseMemectResponse(body)
}

func parseMemectResponse(body []byte) (*Completion, error) {
	var out memectResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode memect response: %w", err)
	}
	switch {
	case out.Response != nil:
		return &Completion{Text: strings.TrimSpace(*out.Response), TotalTokens: out.Usage.TotalTokens}, nil
	case len(out.Choices) > 0:
		return &Completion{Text: strings.TrimSpace(out.Choices[0].Message.Content), TotalTokens: out.Usage.TotalTokens}, nil
	}
	return nil, fmt.Errorf("memect response has neither response nor choices")
}

func createMemectFactory(args interface{}) (ICompleter, error) {
	cfg, err := decodeBackend(args)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = cfg.BaseURL
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = memectModeCompletion
	}
	if mode != memectModeCompletion && mode != memectModeChat {
		return nil, fmt.Errorf("unsupported memect mode: %s", cfg.Mode)
	}
	maxLength := cfg.MaxTokens
	if maxLength <= 0 {
		maxLength = 2048
	}
	c := &memectCompleter{
		endpoint:    endpoint,
		mode:        mode,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxLength:   maxLength,
		client:      http.DefaultClient,
	}
	return wrapCompleter(c, cfg), nil
}

func init() {
	Register("memect", createMemectFactory)
}
