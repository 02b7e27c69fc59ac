package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"port": 8080,
		"session_secret": "s",
		"file_store": {"type": "local", "dir": "/tmp/docchat"},
		"embedding": {"backends": [{"type": "azure", "model": "text-embedding-ada-002"}]},
		"models": {"azure": {"model": "gpt-35"}}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(2*1024*1024), cfg.Upload.MaxSize)
	require.Equal(t, []string{".pdf", ".txt", ".docx", ".doc"}, cfg.Upload.Extensions)
	require.Equal(t, 4096, cfg.Retrieval.EmbedBudget)
	require.Equal(t, 15, cfg.Retrieval.TopK)
	require.Equal(t, 6, cfg.Retrieval.Window)
	require.Equal(t, 3000, cfg.Retrieval.ContextBudget)
	require.Equal(t, 2, cfg.Extraction.Concurrency)
	require.Equal(t, "azure", cfg.Models["azure"].Type)
	require.Equal(t, 0.6, cfg.Models["azure"].Temperature)
	require.Equal(t, 1024, cfg.Models["azure"].MaxTokens)
	require.Equal(t, "memect", cfg.SelfHosted.Type)
	require.Equal(t, 2048, cfg.SelfHosted.MaxTokens)
	require.Equal(t, "info", cfg.LogConfig.Level)
}

func TestLoadResolvesKeyFromEnv(t *testing.T) {
	t.Setenv("DOCCHAT_TEST_KEY", "secret-key")
	path := writeConfig(t, `{
		"port": 8080,
		"session_secret": "s",
		"file_store": {"dir": "/tmp/docchat"},
		"embedding": {"backends": [{"type": "open_ai", "api_key_env": "DOCCHAT_TEST_KEY"}]}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "secret-key", cfg.Embedding.Backends[0].APIKey)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing port", body: `{"session_secret": "s", "file_store": {"dir": "d"}, "embedding": {"backends": [{"type": "x"}]}}`},
		{name: "missing secret", body: `{"port": 1, "file_store": {"dir": "d"}, "embedding": {"backends": [{"type": "x"}]}}`},
		{name: "missing dir", body: `{"port": 1, "session_secret": "s", "embedding": {"backends": [{"type": "x"}]}}`},
		{name: "bad store", body: `{"port": 1, "session_secret": "s", "file_store": {"type": "ftp"}, "embedding": {"backends": [{"type": "x"}]}}`},
		{name: "missing embedder", body: `{"port": 1, "session_secret": "s", "file_store": {"dir": "d"}}`},
		{name: "s3 without bucket", body: `{"port": 1, "session_secret": "s", "file_store": {"type": "s3", "s3": {"endpoint": "e"}}, "embedding": {"backends": [{"type": "x"}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}
