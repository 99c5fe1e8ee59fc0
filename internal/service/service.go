// Package service ties the crawl, index, and answer stages into the three
// operations callers use: trigger an update, ask a question, read status.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sitesage/sitesage/internal/answer"
	"github.com/sitesage/sitesage/internal/crawl"
	"github.com/sitesage/sitesage/internal/index"
	"github.com/sitesage/sitesage/internal/store"
)

// ErrUpdateInProgress means a trigger arrived while another update was
// running. The new trigger is coalesced, not queued: the site is already
// being refreshed.
var ErrUpdateInProgress = errors.New("update already in progress")

// UpdateResult summarizes one completed update cycle.
type UpdateResult struct {
	PagesCrawled  int // pages fetched successfully this crawl
	ChunksIndexed int // chunks in the now-published generation
	Changed       bool
	Generation    int64
}

// Status is a point-in-time view of the service.
type Status struct {
	TargetURL         string
	LastGeneration    int64
	LastUpdateTime    time.Time
	IndexedChunkCount int
	UpdateInProgress  bool
}

type Service struct {
	targetURL      string
	defaultSources int

	crawler *crawl.Crawler
	indexer *index.Indexer
	store   store.VectorStore
	engine  *answer.Engine
	log     *slog.Logger

	busy atomic.Bool
}

func New(targetURL string, crawler *crawl.Crawler, indexer *index.Indexer, vs store.VectorStore, engine *answer.Engine, defaultSources int, log *slog.Logger) *Service {
	if defaultSources <= 0 {
		defaultSources = answer.DefaultSources
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		targetURL:      targetURL,
		defaultSources: defaultSources,
		crawler:        crawler,
		indexer:        indexer,
		store:          vs,
		engine:         engine,
		log:            log,
	}
}

// TriggerUpdate runs one crawl-detect-index cycle. At most one update runs
// at a time; a concurrent trigger returns ErrUpdateInProgress immediately.
// Queries keep serving the previous generation until the new one is
// published.
func (s *Service) TriggerUpdate(ctx context.Context) (UpdateResult, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return UpdateResult{}, ErrUpdateInProgress
	}
	defer s.busy.Store(false)

	log := s.log.With("run", uuid.NewString()[:8])
	log.Info("update started", "target", s.targetURL)
	start := time.Now()

	res, err := s.crawler.Crawl(ctx, s.targetURL)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("crawl %s: %w", s.targetURL, err)
	}

	plan := index.BuildPlan(s.indexer.State(), res)
	stats, err := s.indexer.Commit(ctx, plan)
	if err != nil {
		return UpdateResult{}, err
	}

	out := UpdateResult{
		PagesCrawled:  res.Fetched,
		ChunksIndexed: s.indexer.State().ChunkCount,
		Changed:       stats.Changed,
		Generation:    stats.Generation,
	}
	log.Info("update finished",
		"pages", out.PagesCrawled,
		"chunks", out.ChunksIndexed,
		"changed", out.Changed,
		"generation", out.Generation,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return out, nil
}

// Ask answers a question from the indexed content. nSources <= 0 selects
// the configured default.
func (s *Service) Ask(ctx context.Context, question string, nSources int) (answer.Answer, error) {
	if nSources <= 0 {
		nSources = s.defaultSources
	}
	return s.engine.Ask(ctx, question, nSources)
}

// AskStream is Ask with the response streamed through onDelta.
func (s *Service) AskStream(ctx context.Context, question string, nSources int, onDelta func(string)) (answer.Answer, error) {
	if nSources <= 0 {
		nSources = s.defaultSources
	}
	return s.engine.AskStream(ctx, question, nSources, onDelta)
}

// Status reports the published generation and whether an update is running.
func (s *Service) Status(ctx context.Context) (Status, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("count indexed chunks: %w", err)
	}
	st := s.indexer.State()
	return Status{
		TargetURL:         s.targetURL,
		LastGeneration:    st.Generation,
		LastUpdateTime:    st.UpdatedAt,
		IndexedChunkCount: count,
		UpdateInProgress:  s.busy.Load(),
	}, nil
}
