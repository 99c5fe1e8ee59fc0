// Package config loads and validates the application configuration.
// Precedence: flags (bound by the CLI) > environment > config file >
// defaults. Every option has a working default except the model API key.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sitesage/sitesage/internal/crawl"
)

const envPrefix = "SITESAGE"

type Config struct {
	TargetURL              string   `mapstructure:"targetUrl"`
	CrawlMode              string   `mapstructure:"crawlMode"`
	MaxPages               int      `mapstructure:"maxPages"`
	MaxDepth               int      `mapstructure:"maxDepth"`
	CrawlDelaySeconds      float64  `mapstructure:"crawlDelaySeconds"`
	CrawlWorkers           int      `mapstructure:"crawlWorkers"`
	SameDomainOnly         bool     `mapstructure:"sameDomainOnly"`
	ExcludePatterns        []string `mapstructure:"excludePatterns"`
	FetchTimeoutSeconds    float64  `mapstructure:"fetchTimeoutSeconds"`
	VerifySSL              bool     `mapstructure:"verifySsl"`
	ChunkSize              int      `mapstructure:"chunkSize"`
	MinRelevance           float64  `mapstructure:"minRelevance"`
	NSources               int      `mapstructure:"nSources"`
	UpdateFrequencyMinutes int      `mapstructure:"updateFrequencyMinutes"`
	LogLevel               string   `mapstructure:"logLevel"`

	Store     StoreConfig     `mapstructure:"store"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
}

type StoreConfig struct {
	Backend     string `mapstructure:"backend"` // memory | postgres
	DatabaseURL string `mapstructure:"databaseUrl"`
}

type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // local | openai
	Endpoint   string `mapstructure:"endpoint"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"apiKey"`
	Dimensions int    `mapstructure:"dimensions"`
}

type LLMConfig struct {
	APIKey     string `mapstructure:"apiKey"`
	Model      string `mapstructure:"model"`
	MaxTokens  int    `mapstructure:"maxTokens"`
	MaxRetries int    `mapstructure:"maxRetries"`
}

// Load reads configuration from the given file, or from an optional
// sitesage.yaml in the usual places when path is empty, then applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Conventional variable names accepted alongside the prefixed forms.
	v.BindEnv("llm.apikey", "SITESAGE_LLM_APIKEY", "ANTHROPIC_API_KEY")
	v.BindEnv("embedding.apikey", "SITESAGE_EMBEDDING_APIKEY", "OPENAI_API_KEY")
	v.BindEnv("store.databaseurl", "SITESAGE_STORE_DATABASEURL", "DATABASE_URL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("sitesage")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/sitesage")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("targetUrl", "https://example.com")
	v.SetDefault("crawlMode", "full")
	v.SetDefault("maxPages", 100)
	v.SetDefault("maxDepth", 3)
	v.SetDefault("crawlDelaySeconds", 1.0)
	v.SetDefault("crawlWorkers", 2)
	v.SetDefault("sameDomainOnly", true)
	v.SetDefault("excludePatterns", []string{".pdf", ".jpg", ".png", ".gif", "/admin", "/login"})
	v.SetDefault("fetchTimeoutSeconds", 10.0)
	v.SetDefault("verifySsl", true)
	v.SetDefault("chunkSize", 1000)
	v.SetDefault("minRelevance", 0.05)
	v.SetDefault("nSources", 5)
	v.SetDefault("updateFrequencyMinutes", 60)
	v.SetDefault("logLevel", "info")

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.databaseUrl", "")

	v.SetDefault("embedding.provider", "local")
	v.SetDefault("embedding.dimensions", 256)
	v.SetDefault("embedding.endpoint", "https://api.openai.com/v1/embeddings")
	v.SetDefault("embedding.model", "text-embedding-3-small")

	v.SetDefault("llm.model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.maxTokens", 1000)
	v.SetDefault("llm.maxRetries", 3)
}

// Validate reports every invalid option at once. Any error here is fatal at
// startup.
func (c Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.TargetURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("targetUrl %q must be an absolute http(s) URL", c.TargetURL))
	}
	if _, err := crawl.ParseMode(c.CrawlMode); err != nil {
		errs = append(errs, err)
	}
	if c.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("maxPages must be at least 1, got %d", c.MaxPages))
	}
	if c.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("maxDepth must not be negative, got %d", c.MaxDepth))
	}
	if c.CrawlDelaySeconds < 0 {
		errs = append(errs, fmt.Errorf("crawlDelaySeconds must not be negative, got %g", c.CrawlDelaySeconds))
	}
	if c.CrawlWorkers < 1 || c.CrawlWorkers > 8 {
		errs = append(errs, fmt.Errorf("crawlWorkers must be between 1 and 8, got %d", c.CrawlWorkers))
	}
	if c.FetchTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("fetchTimeoutSeconds must be positive, got %g", c.FetchTimeoutSeconds))
	}
	if c.ChunkSize < 100 {
		errs = append(errs, fmt.Errorf("chunkSize must be at least 100, got %d", c.ChunkSize))
	}
	if c.MinRelevance < 0 || c.MinRelevance >= 1 {
		errs = append(errs, fmt.Errorf("minRelevance must be in [0, 1), got %g", c.MinRelevance))
	}
	if c.NSources < 1 || c.NSources > 20 {
		errs = append(errs, fmt.Errorf("nSources must be between 1 and 20, got %d", c.NSources))
	}
	if c.UpdateFrequencyMinutes < 1 {
		errs = append(errs, fmt.Errorf("updateFrequencyMinutes must be at least 1, got %d", c.UpdateFrequencyMinutes))
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("store.databaseUrl required for the postgres backend (or set DATABASE_URL)"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend must be memory or postgres, got %q", c.Store.Backend))
	}

	switch c.Embedding.Provider {
	case "local":
	case "openai":
		if c.Embedding.APIKey == "" {
			errs = append(errs, errors.New("embedding.apiKey required for the openai provider (or set OPENAI_API_KEY)"))
		}
		if c.Embedding.Endpoint == "" {
			errs = append(errs, errors.New("embedding.endpoint required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("embedding.provider must be local or openai, got %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions < 1 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions))
	}

	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.apiKey required (or set ANTHROPIC_API_KEY)"))
	}
	if c.LLM.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("llm.maxTokens must be positive, got %d", c.LLM.MaxTokens))
	}

	return errors.Join(errs...)
}

func (c Config) CrawlDelay() time.Duration {
	return time.Duration(c.CrawlDelaySeconds * float64(time.Second))
}

func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds * float64(time.Second))
}

func (c Config) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateFrequencyMinutes) * time.Minute
}

// Level translates the configured log level for slog.
func (c Config) Level() slog.Level {
	lvl, err := parseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logLevel must be debug, info, warn, or error, got %q", s)
	}
}
