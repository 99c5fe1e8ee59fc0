package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sitesage/sitesage/internal/answer"
	"github.com/sitesage/sitesage/internal/chunk"
	"github.com/sitesage/sitesage/internal/config"
	"github.com/sitesage/sitesage/internal/crawl"
	"github.com/sitesage/sitesage/internal/index"
	"github.com/sitesage/sitesage/internal/llm"
	"github.com/sitesage/sitesage/internal/store"
)

// Build assembles a ready-to-use Service from configuration. The returned
// close function releases the store backend; call it on shutdown.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*Service, func(), error) {
	mode, err := crawl.ParseMode(cfg.CrawlMode)
	if err != nil {
		return nil, nil, err
	}

	var embedder store.Embedder
	switch cfg.Embedding.Provider {
	case "openai":
		embedder = store.NewEmbeddingClient(cfg.Embedding.Endpoint, cfg.Embedding.APIKey, cfg.Embedding.Model, 30*time.Second)
	default:
		embedder = store.NewHashEmbedder(cfg.Embedding.Dimensions)
	}

	var vs store.VectorStore
	closeStore := func() {}
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, embedder, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		vs = pg
		closeStore = pg.Close
	default:
		vs = store.NewMemory(embedder)
	}

	model, err := llm.NewClient(llm.Config{
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		MaxTokens:  cfg.LLM.MaxTokens,
		MaxRetries: cfg.LLM.MaxRetries,
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	if !cfg.VerifySSL {
		log.Warn("TLS certificate verification is disabled", "target", cfg.TargetURL)
	}

	crawler := crawl.New(
		crawl.NewFetcher(cfg.FetchTimeout(), cfg.VerifySSL),
		chunk.NewChunker(cfg.ChunkSize),
		crawl.Config{
			Mode:            mode,
			MaxPages:        cfg.MaxPages,
			MaxDepth:        cfg.MaxDepth,
			Workers:         cfg.CrawlWorkers,
			Delay:           cfg.CrawlDelay(),
			SameDomainOnly:  cfg.SameDomainOnly,
			ExcludePatterns: cfg.ExcludePatterns,
		},
		log,
	)

	indexer := index.New(vs, log)
	engine := answer.NewEngine(answer.NewRetriever(vs, cfg.MinRelevance), model, log)

	return New(cfg.TargetURL, crawler, indexer, vs, engine, cfg.NSources, log), closeStore, nil
}
