package index

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sitesage/sitesage/internal/store"
)

// Indexer applies plans to the vector store and owns the published State
// pointer. Readers load the pointer without locking; Commit swaps it only
// after every store operation succeeded.
type Indexer struct {
	store store.VectorStore
	log   *slog.Logger
	state atomic.Pointer[State]
}

func New(vs store.VectorStore, log *slog.Logger) *Indexer {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ix := &Indexer{store: vs, log: log}
	ix.state.Store(emptyState())
	return ix
}

// State returns the currently published generation snapshot. Callers must
// not mutate it.
func (ix *Indexer) State() *State {
	return ix.state.Load()
}

// CommitStats reports what a commit actually did.
type CommitStats struct {
	Generation int64
	Upserted   int
	Deleted    int
	Changed    bool
}

// Commit applies a plan: delete stale chunk ids, upsert fresh chunks, then
// publish the next State. A store failure aborts before publication and the
// previous generation stays authoritative; deterministic chunk ids make the
// retry on the next cycle safe. An unchanged plan only refreshes the
// snapshot timestamp.
func (ix *Indexer) Commit(ctx context.Context, plan *Plan) (CommitStats, error) {
	prev := ix.state.Load()

	if !plan.Changed {
		next := *prev
		next.UpdatedAt = time.Now().UTC()
		ix.state.Store(&next)
		ix.log.Info("index unchanged", "generation", prev.Generation, "pages", len(prev.Pages))
		return CommitStats{Generation: prev.Generation}, nil
	}

	gen := prev.Generation + 1
	if err := ix.store.Delete(ctx, plan.Deletes); err != nil {
		return CommitStats{}, fmt.Errorf("commit generation %d: delete %d chunks: %w", gen, len(plan.Deletes), err)
	}
	if err := ix.store.Upsert(ctx, plan.Upserts); err != nil {
		return CommitStats{}, fmt.Errorf("commit generation %d: upsert %d chunks: %w", gen, len(plan.Upserts), err)
	}

	chunkCount := 0
	for _, entry := range plan.Pages {
		chunkCount += entry.ChunkCount
	}
	next := &State{
		Generation:  gen,
		UpdatedAt:   time.Now().UTC(),
		CrawlDigest: plan.Digest,
		Pages:       plan.Pages,
		ChunkCount:  chunkCount,
	}
	ix.state.Store(next)

	ix.log.Info("generation published",
		"generation", next.Generation,
		"pages", len(next.Pages),
		"chunks", next.ChunkCount,
		"upserted", len(plan.Upserts),
		"deleted", len(plan.Deletes))
	return CommitStats{Generation: gen, Upserted: len(plan.Upserts), Deleted: len(plan.Deletes), Changed: true}, nil
}
