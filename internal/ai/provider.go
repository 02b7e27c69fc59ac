package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrUnavailable = errors.New("ai backend unavailable")

// Completion is the text a backend produced plus the token usage it reported.
// TotalTokens is zero when the backend does not report usage.
type Completion struct {
	Text        string
	TotalTokens int
}

type ICompleter interface {
	Name() string
	Complete(ctx context.Context, prompt string) (*Completion, error)
}

// Embedding pairs a chunk text with its vector.
type Embedding struct {
	Text   string
	Vector []float32
}

// EmbedResult is one embed call. Model names the model that produced the
// vectors when the embedder knows it.
type EmbedResult struct {
	Records     []Embedding
	TotalTokens int
	Model       string
}

// IEmbedder embeds a batch of texts. Records come back in input order.
type IEmbedder interface {
	Embed(ctx context.Context, texts []string) (*EmbedResult, error)
	ModelName() string
}

type CompleterFactory func(args interface{}) (ICompleter, error)

type EmbedderFactory func(args interface{}) (IEmbedder, error)

var (
	registryMu     sync.RWMutex
	completers     = map[string]CompleterFactory{}
	embedFactories = map[string]EmbedderFactory{}
)

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func Register(name string, factory CompleterFactory) {
	key := normalizeName(name)
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	completers[key] = factory
	registryMu.Unlock()
}

func RegisterEmbed(name string, factory EmbedderFactory) {
	key := normalizeName(name)
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	embedFactories[key] = factory
	registryMu.Unlock()
}

func NewCompleter(name string, args interface{}) (ICompleter, error) {
	key := normalizeName(name)
	if key == "" {
		return nil, fmt.Errorf("backend type is required")
	}
	registryMu.RLock()
	factory := completers[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported completion backend: %s: %w", name, ErrUnavailable)
	}
	return factory(args)
}

func NewEmbedder(name string, args interface{}) (IEmbedder, error) {
	key := normalizeName(name)
	if key == "" {
		return nil, fmt.Errorf("backend type is required")
	}
	registryMu.RLock()
	factory := embedFactories[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported embedding backend: %s: %w", name, ErrUnavailable)
	}
	return factory(args)
}

// CompleterNames lists the registered completion backends, sorted.
func CompleterNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(completers))
	for name := range completers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// backendConfig mirrors the JSON shape of config.BackendConfig. Providers
// read the fields they need and ignore the rest.
type backendConfig struct {
	Type              string  `json:"type"`
	Model             string  `json:"model"`
	EmbeddingModel    string  `json:"embedding_model"`
	BaseURL           string  `json:"base_url"`
	APIKey            string  `json:"api_key"`
	APIVersion        string  `json:"api_version"`
	Endpoint          string  `json:"endpoint"`
	Mode              string  `json:"mode"`
	Temperature       float64 `json:"temperature"`
	MaxTokens         int     `json:"max_tokens"`
	MaxRetries        int     `json:"max_retries"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}

func decodeBackend(args interface{}) (*backendConfig, error) {
	cfg := &backendConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	return cfg, nil
}

// wrapCompleter applies the retry and rate limit policies every factory shares.
func wrapCompleter(c ICompleter, cfg *backendConfig) ICompleter {
	c = WithCompleterRetry(c, cfg.MaxRetries)
	return WithCompleterRateLimit(c, cfg.RequestsPerSecond)
}

func wrapEmbedder(e IEmbedder, cfg *backendConfig) IEmbedder {
	e = WithEmbedderRetry(e, cfg.MaxRetries)
	return WithEmbedderRateLimit(e, cfg.RequestsPerSecond)
}

func recordsFromVectors(texts []string, vectors [][]float32) ([]Embedding, error) {
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", len(texts), len(vectors))
	}
	records := make([]Embedding, 0, len(texts))
	for i, text := range texts {
		if len(vectors[i]) == 0 {
			return nil, fmt.Errorf("empty embedding at %d", i)
		}
		records = append(records, Embedding{Text: text, Vector: vectors[i]})
	}
	return records, nil
}
