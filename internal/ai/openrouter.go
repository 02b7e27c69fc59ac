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

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openrouterConfig struct {
	backendConfig
	HTTPReferer string `json:"http_referer"`
	XTitle      string `json:"x_title"`
}

type openrouterCompleter struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpReferer string
	xTitle      string
	client      *http.Client
}

type openrouterRequest struct {
	Model       string          `json:"model"`
	Messages    []openrouterMsg `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

type openrouterMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openrouterResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *openrouterCompleter) Name() string {
	return "openrouter"
}

func (p *openrouterCompleter) Complete(ctx context.Context, prompt string) (*Completion, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + "/chat/completions"
	data, err := json.Marshal(openrouterRequest{
		Model:       p.model,
		Messages:    []openrouterMsg{{Role: "user", Content: prompt}},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if p.httpReferer != "" {
		req.Header.Set("HTTP-Referer", p.httpReferer)
	}
	if p.xTitle != "" {
		req.Header.Set("X-Title", p.xTitle)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openrouter request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out openrouterResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("openrouter response has no choices")
	}
	return &Completion{
		Text:        strings.TrimSpace(out.Choices[0].Message.Content),
		TotalTokens: out.Usage.TotalTokens,
	}, nil
}

func createOpenRouterFactory(args interface{}) (ICompleter, error) {
	cfg := &openrouterConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	c := &openrouterCompleter{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		baseURL:     baseURL,
		model:       strings.TrimSpace(cfg.Model),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpReferer: strings.TrimSpace(cfg.HTTPReferer),
		xTitle:      strings.TrimSpace(cfg.XTitle),
		client:      http.DefaultClient,
	}
	return wrapCompleter(c, &cfg.backendConfig), nil
}

func init() {
	Register("openrouter", createOpenRouterFactory)
}
