package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	defaultOpenAIModel      = "gpt-3.5-turbo"
	defaultOpenAIEmbedModel = "text-embedding-ada-002"
	defaultAzureAPIVersion  = "2023-05-15"
)

type openAICompleter struct {
	name        string
	llm         *openai.LLM
	temperature float64
	maxTokens   int
}

func (c *openAICompleter) Name() string {
	return c.name
}

func (c *openAICompleter) Complete(ctx context.Context, prompt string) (*Completion, error) {
	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}
	resp, err := c.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s completion: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s response has no choices", c.name)
	}
	choice := resp.Choices[0]
	return &Completion{
		Text:        strings.TrimSpace(choice.Content),
		TotalTokens: usageFromInfo(choice.GenerationInfo),
	}, nil
}

type openAIEmbedder struct {
	llm   *openai.LLM
	model string
}

func (e *openAIEmbedder) ModelName() string {
	return e.model
}

func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	if len(texts) == 0 {
		return &EmbedResult{}, nil
	}
	vectors, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	records, err := recordsFromVectors(texts, vectors)
	if err != nil {
		return nil, err
	}
	return &EmbedResult{Records: records, TotalTokens: CountTokens(e.model, texts...), Model: e.model}, nil
}

// newOpenAILLM builds a langchaingo client. Azure uses the deployment name as
// the model and requires an explicit endpoint.
func newOpenAILLM(azure bool, cfg *backendConfig, model, embedModel string) (*openai.LLM, error) {
	if cfg.APIKey == "" {
		return nil, ErrUnavailable
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(model),
		openai.WithEmbeddingModel(embedModel),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if azure {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("azure base_url is required")
		}
		version := cfg.APIVersion
		if version == "" {
			version = defaultAzureAPIVersion
		}
		opts = append(opts, openai.WithAPIType(openai.APITypeAzure), openai.WithAPIVersion(version))
	}
	return openai.New(opts...)
}

func createOpenAICompleterFactory(name string, azure bool) CompleterFactory {
	return func(args interface{}) (ICompleter, error) {
		cfg, err := decodeBackend(args)
		if err != nil {
			return nil, err
		}
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		embedModel := cfg.EmbeddingModel
		if embedModel == "" {
			embedModel = defaultOpenAIEmbedModel
		}
		llm, err := newOpenAILLM(azure, cfg, model, embedModel)
		if err != nil {
			return nil, fmt.Errorf("init %s: %w", name, err)
		}
		c := &openAICompleter{
			name:        name,
			llm:         llm,
			temperature: cfg.Temperature,
			maxTokens:   cfg.MaxTokens,
		}
		return wrapCompleter(c, cfg), nil
	}
}

func createOpenAIEmbedderFactory(name string, azure bool) EmbedderFactory {
	return func(args interface{}) (IEmbedder, error) {
		cfg, err := decodeBackend(args)
		if err != nil {
			return nil, err
		}
		model := cfg.EmbeddingModel
		if model == "" {
			model = cfg.Model
		}
		if model == "" {
			model = defaultOpenAIEmbedModel
		}
		llm, err := newOpenAILLM(azure, cfg, model, model)
		if err != nil {
			return nil, fmt.Errorf("init %s embedder: %w", name, err)
		}
		return wrapEmbedder(&openAIEmbedder{llm: llm, model: model}, cfg), nil
	}
}

func init() {
	Register("open_ai", createOpenAICompleterFactory("open_ai", false))
	Register("azure", createOpenAICompleterFactory("azure", true))
	RegisterEmbed("open_ai", createOpenAIEmbedderFactory("open_ai", false))
	RegisterEmbed("azure", createOpenAIEmbedderFactory("azure", true))
}
