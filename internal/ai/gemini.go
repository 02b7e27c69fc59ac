package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	defaultGeminiModel      = "gemini-2.0-flash"
	defaultGeminiEmbedModel = "text-embedding-004"
)

type geminiCompleter struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
}

func (p *geminiCompleter) Name() string {
	return "gemini"
}

func (p *geminiCompleter) Complete(ctx context.Context, prompt string) (*Completion, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(p.temperature)),
	}
	if p.maxTokens > 0 {
		config.MaxOutputTokens = int32(p.maxTokens)
	}
	resp, err := p.client.Models.GenerateContent(
		ctx,
		p.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		config,
	)
	if err != nil {
		return nil, err
	}
	out := &Completion{Text: strings.TrimSpace(resp.Text())}
	if resp.UsageMetadata != nil {
		out.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

type geminiEmbedder struct {
	client *genai.Client
	model  string
}

func (p *geminiEmbedder) ModelName() string {
	return p.model
}

func (p *geminiEmbedder) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	if len(texts) == 0 {
		return &EmbedResult{}, nil
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: text}}})
	}
	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	})
	if err != nil {
		return nil, err
	}
	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, item := range resp.Embeddings {
		if item == nil {
			vectors = append(vectors, nil)
			continue
		}
		vectors = append(vectors, item.Values)
	}
	records, err := recordsFromVectors(texts, vectors)
	if err != nil {
		return nil, err
	}
	return &EmbedResult{Records: records, TotalTokens: CountTokens(p.model, texts...), Model: p.model}, nil
}

func newGeminiClient(cfg *backendConfig) (*genai.Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrUnavailable
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	return client, nil
}

func createGeminiFactory(args interface{}) (ICompleter, error) {
	cfg, err := decodeBackend(args)
	if err != nil {
		return nil, err
	}
	client, err := newGeminiClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	c := &geminiCompleter{
		client:      client,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
	return wrapCompleter(c, cfg), nil
}

func createGeminiEmbedFactory(args interface{}) (IEmbedder, error) {
	cfg, err := decodeBackend(args)
	if err != nil {
		return nil, err
	}
	client, err := newGeminiClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = cfg.Model
	}
	if model == "" {
		model = defaultGeminiEmbedModel
	}
	return wrapEmbedder(&geminiEmbedder{client: client, model: model}, cfg), nil
}

func init() {
	Register("gemini", createGeminiFactory)
	RegisterEmbed("gemini", createGeminiEmbedFactory)
}
