package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port             int                      `json:"port"`
	SessionSecret    string                   `json:"session_secret"`
	SessionTTLHours  int                      `json:"session_ttl_hours"`
	SessionCacheSize int                      `json:"session_cache_size"`
	CORSAllowlist    []string                 `json:"cors_allowlist"`
	RateLimitMillis  int                      `json:"rate_limit_ms"`
	PromptFile       string                   `json:"prompt_file"`
	LLMTimeout       int                      `json:"llm_timeout"`
	LogConfig        logger.LogConfig         `json:"log_config"`
	FileStore        FileStoreConfig          `json:"file_store"`
	Upload           UploadConfig             `json:"upload"`
	Retrieval        RetrievalConfig          `json:"retrieval"`
	Embedding        EmbeddingConfig          `json:"embedding"`
	Models           map[string]BackendConfig `json:"models"`
	SelfHosted       BackendConfig            `json:"self_hosted"`
	Extraction       ExtractionConfig         `json:"extraction"`
	Convert          ConvertConfig            `json:"convert"`
	Database         *DatabaseConfig          `json:"database"`
	Retention        RetentionConfig          `json:"retention"`
}

type FileStoreConfig struct {
	Type string   `json:"type"`
	Dir  string   `json:"dir"`
	S3   S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint     string `json:"endpoint"`
	SecretID     string `json:"secret_id"`
	SecretKey    string `json:"secret_key"`
	Bucket       string `json:"bucket"`
	Region       string `json:"region"`
	Prefix       string `json:"prefix"`
	UseSSL       bool   `json:"use_ssl"`
	UsePathStyle bool   `json:"use_path_style"`
}

type UploadConfig struct {
	MaxSize    int64    `json:"max_size"`
	Extensions []string `json:"extensions"`
}

type RetrievalConfig struct {
	EmbedBudget   int `json:"embed_budget"`
	TopK          int `json:"top_k"`
	Window        int `json:"window"`
	ContextBudget int `json:"context_budget"`
}

type EmbeddingConfig struct {
	Backends        []BackendConfig `json:"backends"`
	CacheSize       int             `json:"cache_size"`
	CacheTTLSeconds int             `json:"cache_ttl_seconds"`
}

// BackendConfig describes one model backend. Type selects the provider
// implementation, the rest is passed to its factory.
type BackendConfig struct {
	Type              string  `json:"type"`
	Model             string  `json:"model"`
	EmbeddingModel    string  `json:"embedding_model,omitempty"`
	BaseURL           string  `json:"base_url,omitempty"`
	APIKey            string  `json:"api_key,omitempty"`
	APIKeyEnv         string  `json:"api_key_env,omitempty"`
	APIVersion        string  `json:"api_version,omitempty"`
	Endpoint          string  `json:"endpoint,omitempty"`
	Mode              string  `json:"mode,omitempty"`
	Temperature       float64 `json:"temperature"`
	MaxTokens         int     `json:"max_tokens"`
	MaxRetries        int     `json:"max_retries"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

type ExtractionConfig struct {
	Concurrency  int           `json:"concurrency"`
	SegmentChars int           `json:"segment_chars"`
	Backend      BackendConfig `json:"backend"`
}

type ConvertConfig struct {
	APIServer      string `json:"api_server"`
	Async          bool   `json:"async"`
	PollIntervalMs int    `json:"poll_interval_ms"`
	MaxPolls       int    `json:"max_polls"`
	Timeout        int    `json:"timeout"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type RetentionConfig struct {
	Spec string `json:"spec"`
	Days int    `json:"days"`
}

const (
	defaultMaxUploadSize = 2 * 1024 * 1024
	defaultEmbedBudget   = 4096
	defaultTopK          = 15
	defaultWindow        = 6
	defaultContextBudget = 3000
)

var defaultExtensions = []string{".pdf", ".txt", ".docx", ".doc"}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.SessionSecret == "" {
		return fmt.Errorf("session_secret is required")
	}
	if cfg.SessionTTLHours == 0 {
		cfg.SessionTTLHours = 24
	}
	if cfg.SessionCacheSize == 0 {
		cfg.SessionCacheSize = 1024
	}
	if cfg.LLMTimeout == 0 {
		cfg.LLMTimeout = 120
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if err := cfg.normalizeFileStore(); err != nil {
		return err
	}
	if cfg.Upload.MaxSize <= 0 {
		cfg.Upload.MaxSize = defaultMaxUploadSize
	}
	if len(cfg.Upload.Extensions) == 0 {
		cfg.Upload.Extensions = append([]string(nil), defaultExtensions...)
	}
	for i, ext := range cfg.Upload.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.Upload.Extensions[i] = ext
	}
	if cfg.Retrieval.EmbedBudget <= 0 {
		cfg.Retrieval.EmbedBudget = defaultEmbedBudget
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = defaultTopK
	}
	if cfg.Retrieval.Window <= 0 {
		cfg.Retrieval.Window = defaultWindow
	}
	if cfg.Retrieval.ContextBudget <= 0 {
		cfg.Retrieval.ContextBudget = defaultContextBudget
	}
	if len(cfg.Embedding.Backends) == 0 {
		return fmt.Errorf("embedding.backends is required")
	}
	for i := range cfg.Embedding.Backends {
		if cfg.Embedding.Backends[i].Type == "" {
			return fmt.Errorf("embedding.backends[%d].type is required", i)
		}
		cfg.Embedding.Backends[i].resolveKey()
	}
	for name, backend := range cfg.Models {
		if backend.Type == "" {
			backend.Type = name
		}
		if backend.Temperature == 0 {
			backend.Temperature = 0.6
		}
		if backend.MaxTokens == 0 {
			backend.MaxTokens = 1024
		}
		backend.resolveKey()
		cfg.Models[name] = backend
	}
	if cfg.SelfHosted.Type == "" {
		cfg.SelfHosted.Type = "memect"
	}
	if cfg.SelfHosted.Temperature == 0 {
		cfg.SelfHosted.Temperature = 0.2
	}
	if cfg.SelfHosted.MaxTokens == 0 {
		cfg.SelfHosted.MaxTokens = 2048
	}
	cfg.SelfHosted.resolveKey()
	if cfg.Extraction.Concurrency <= 0 {
		cfg.Extraction.Concurrency = 2
	}
	if cfg.Extraction.SegmentChars <= 0 {
		cfg.Extraction.SegmentChars = 4000
	}
	if cfg.Extraction.Backend.MaxTokens == 0 {
		cfg.Extraction.Backend.MaxTokens = 2000
	}
	cfg.Extraction.Backend.resolveKey()
	if cfg.Convert.PollIntervalMs <= 0 {
		cfg.Convert.PollIntervalMs = 1000
	}
	if cfg.Convert.MaxPolls <= 0 {
		cfg.Convert.MaxPolls = 120
	}
	if cfg.Convert.Timeout <= 0 {
		cfg.Convert.Timeout = 60
	}
	if cfg.Retention.Days <= 0 {
		cfg.Retention.Days = 30
	}
	if cfg.Retention.Spec == "" {
		cfg.Retention.Spec = "0 3 * * *"
	}
	return nil
}

func (cfg *Config) normalizeFileStore() error {
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	switch cfg.FileStore.Type {
	case "local":
		if cfg.FileStore.Dir == "" {
			return fmt.Errorf("file_store.dir is required for local store")
		}
	case "s3":
		s3 := &cfg.FileStore.S3
		if s3.Endpoint == "" || s3.Bucket == "" || s3.SecretID == "" || s3.SecretKey == "" {
			return fmt.Errorf("file_store.s3 endpoint/bucket/secret_id/secret_key are required for s3 store")
		}
		if s3.Region == "" {
			s3.Region = "cn"
		}
	default:
		return fmt.Errorf("file_store.type must be local or s3")
	}
	return nil
}

func (b *BackendConfig) resolveKey() {
	if b.APIKey != "" || b.APIKeyEnv == "" {
		return
	}
	b.APIKey = strings.TrimSpace(os.Getenv(b.APIKeyEnv))
}

// ModelNames returns the router-managed backend selectors.
func (cfg *Config) ModelNames() []string {
	names := make([]string, 0, len(cfg.Models))
	for name := range cfg.Models {
		names = append(names, name)
	}
	return names
}
