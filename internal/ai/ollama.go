package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

const (
	defaultOllamaModel      = "llama3"
	defaultOllamaEmbedModel = "nomic-embed-text"
)

type ollamaCompleter struct {
	client      *api.Client
	model       string
	temperature float64
	maxTokens   int
}

func (o *ollamaCompleter) Name() string {
	return "ollama"
}

func (o *ollamaCompleter) Complete(ctx context.Context, prompt string) (*Completion, error) {
	stream := false
	options := map[string]interface{}{
		"temperature": o.temperature,
	}
	if o.maxTokens > 0 {
		options["num_predict"] = o.maxTokens
	}
	req := api.GenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  &stream,
		Options: options,
	}
	var (
		builder strings.Builder
		tokens  int
	)
	err := o.client.Generate(ctx, &req, func(resp api.GenerateResponse) error {
		builder.WriteString(resp.Response)
		if resp.Done {
			tokens = resp.PromptEvalCount + resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama generate: %w", err)
	}
	return &Completion{Text: strings.TrimSpace(builder.String()), TotalTokens: tokens}, nil
}

type ollamaEmbedder struct {
	client *api.Client
	model  string
}

func (o *ollamaEmbedder) ModelName() string {
	return o.model
}

func (o *ollamaEmbedder) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	if len(texts) == 0 {
		return &EmbedResult{}, nil
	}
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model: o.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	records, err := recordsFromVectors(texts, resp.Embeddings)
	if err != nil {
		return nil, err
	}
	return &EmbedResult{Records: records, TotalTokens: resp.PromptEvalCount, Model: o.model}, nil
}

// newOllamaClient uses base_url when set, otherwise OLLAMA_HOST.
func newOllamaClient(cfg *backendConfig) (*api.Client, error) {
	host := envconfig.Host()
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse ollama base_url: %w", err)
		}
		host = u
	}
	return api.NewClient(host, http.DefaultClient), nil
}

func createOllamaFactory(args interface{}) (ICompleter, error) {
	cfg, err := decodeBackend(args)
	if err != nil {
		return nil, err
	}
	client, err := newOllamaClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	c := &ollamaCompleter{
		client:      client,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
	return wrapCompleter(c, cfg), nil
}

func createOllamaEmbedFactory(args interface{}) (IEmbedder, error) {
	cfg, err := decodeBackend(args)
	if err != nil {
		return nil, err
	}
	client, err := newOllamaClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = cfg.Model
	}
	if model == "" {
		model = defaultOllamaEmbedModel
	}
	return wrapEmbedder(&ollamaEmbedder{client: client, model: model}, cfg), nil
}

func init() {
	Register("ollama", createOllamaFactory)
	RegisterEmbed("ollama", createOllamaEmbedFactory)
}
