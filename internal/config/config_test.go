package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		TargetURL:              "https://docs.example.com",
		CrawlMode:              "full",
		MaxPages:               50,
		MaxDepth:               2,
		CrawlDelaySeconds:      0.5,
		CrawlWorkers:           2,
		SameDomainOnly:         true,
		FetchTimeoutSeconds:    5,
		VerifySSL:              true,
		ChunkSize:              800,
		MinRelevance:           0.05,
		NSources:               5,
		UpdateFrequencyMinutes: 30,
		LogLevel:               "info",
		Store:                  StoreConfig{Backend: "memory"},
		Embedding:              EmbeddingConfig{Provider: "local", Dimensions: 256},
		LLM:                    LLMConfig{APIKey: "key", Model: "model", MaxTokens: 500, MaxRetries: 3},
	}
}

func TestLoadDefaults(t *testing.T) {
	// Keep a developer's ~/.config/sitesage/sitesage.yaml out of the search path.
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", cfg.TargetURL)
	assert.Equal(t, "full", cfg.CrawlMode)
	assert.Equal(t, 100, cfg.MaxPages)
	assert.Equal(t, 3, cfg.MaxDepth)
	assert.Equal(t, 2, cfg.CrawlWorkers)
	assert.True(t, cfg.SameDomainOnly)
	assert.True(t, cfg.VerifySSL)
	assert.Contains(t, cfg.ExcludePatterns, ".pdf")
	assert.Contains(t, cfg.ExcludePatterns, "/admin")
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 5, cfg.NSources)
	assert.Equal(t, 60, cfg.UpdateFrequencyMinutes)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 256, cfg.Embedding.Dimensions)
	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, "claude-3-5-haiku-latest", cfg.LLM.Model)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	path := filepath.Join(t.TempDir(), "sitesage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
targetUrl: https://docs.internal.example
crawlMode: single
maxPages: 10
chunkSize: 400
excludePatterns:
  - /private
store:
  backend: postgres
  databaseUrl: postgres://localhost:5432/sitesage
llm:
  model: claude-sonnet-4-0
  maxTokens: 2000
logLevel: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://docs.internal.example", cfg.TargetURL)
	assert.Equal(t, "single", cfg.CrawlMode)
	assert.Equal(t, 10, cfg.MaxPages)
	assert.Equal(t, 400, cfg.ChunkSize)
	assert.Equal(t, []string{"/private"}, cfg.ExcludePatterns)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "postgres://localhost:5432/sitesage", cfg.Store.DatabaseURL)
	assert.Equal(t, "claude-sonnet-4-0", cfg.LLM.Model)
	assert.Equal(t, 2000, cfg.LLM.MaxTokens)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.MaxDepth)
	assert.Equal(t, 5, cfg.NSources)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Setenv("SITESAGE_TARGETURL", "https://from-env.example")
	t.Setenv("SITESAGE_MAXPAGES", "7")
	t.Setenv("SITESAGE_STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://env-host/db")

	path := filepath.Join(t.TempDir(), "sitesage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targetUrl: https://from-file.example\nmaxPages: 99\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://from-env.example", cfg.TargetURL)
	assert.Equal(t, 7, cfg.MaxPages)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "postgres://env-host/db", cfg.Store.DatabaseURL)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
		wantIn string
	}{
		{"relative url", func(c *Config) { c.TargetURL = "/just/a/path" }, "targetUrl"},
		{"bad scheme", func(c *Config) { c.TargetURL = "ftp://example.com" }, "targetUrl"},
		{"bad mode", func(c *Config) { c.CrawlMode = "shallow" }, "crawl mode"},
		{"zero pages", func(c *Config) { c.MaxPages = 0 }, "maxPages"},
		{"negative depth", func(c *Config) { c.MaxDepth = -1 }, "maxDepth"},
		{"negative delay", func(c *Config) { c.CrawlDelaySeconds = -0.5 }, "crawlDelaySeconds"},
		{"too many workers", func(c *Config) { c.CrawlWorkers = 9 }, "crawlWorkers"},
		{"tiny chunks", func(c *Config) { c.ChunkSize = 50 }, "chunkSize"},
		{"relevance out of range", func(c *Config) { c.MinRelevance = 1.0 }, "minRelevance"},
		{"zero sources", func(c *Config) { c.NSources = 0 }, "nSources"},
		{"too many sources", func(c *Config) { c.NSources = 21 }, "nSources"},
		{"zero frequency", func(c *Config) { c.UpdateFrequencyMinutes = 0 }, "updateFrequencyMinutes"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "logLevel"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }, "store.backend"},
		{"postgres without url", func(c *Config) { c.Store = StoreConfig{Backend: "postgres"} }, "store.databaseUrl"},
		{"unknown embedding provider", func(c *Config) { c.Embedding.Provider = "cohere" }, "embedding.provider"},
		{"openai without key", func(c *Config) { c.Embedding = EmbeddingConfig{Provider: "openai", Endpoint: "https://api.openai.com/v1/embeddings", Dimensions: 1536} }, "embedding.apiKey"},
		{"zero dimensions", func(c *Config) { c.Embedding.Dimensions = 0 }, "embedding.dimensions"},
		{"missing llm key", func(c *Config) { c.LLM.APIKey = "" }, "llm.apiKey"},
		{"zero max tokens", func(c *Config) { c.LLM.MaxTokens = 0 }, "llm.maxTokens"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantIn)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.MaxPages = 0
	cfg.ChunkSize = 10
	cfg.LLM.APIKey = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maxPages")
	assert.Contains(t, err.Error(), "chunkSize")
	assert.Contains(t, err.Error(), "llm.apiKey")
}

func TestDurationAccessors(t *testing.T) {
	cfg := validConfig()
	cfg.CrawlDelaySeconds = 1.5
	cfg.FetchTimeoutSeconds = 2.5
	cfg.UpdateFrequencyMinutes = 90

	assert.Equal(t, 1500*time.Millisecond, cfg.CrawlDelay())
	assert.Equal(t, 2500*time.Millisecond, cfg.FetchTimeout())
	assert.Equal(t, 90*time.Minute, cfg.UpdateInterval())
}
