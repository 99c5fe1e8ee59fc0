// Package store persists embedded chunks and serves similarity queries.
// Embedding happens inside the store adapters: callers hand over text, never
// vectors.
package store

import (
	"context"

	"github.com/sitesage/sitesage/internal/chunk"
)

// Match is one similarity hit: the stored chunk and its relevance in [0,1].
type Match struct {
	Chunk chunk.Chunk
	Score float64
}

// VectorStore is the narrow persistence interface shared by the indexer and
// the retriever. Upsert overwrites by chunk id, so re-submitting an
// unchanged chunk is a no-op rather than a duplicate.
type VectorStore interface {
	Upsert(ctx context.Context, chunks []chunk.Chunk) error
	Delete(ctx context.Context, ids []string) error
	Query(ctx context.Context, text string, topN int) ([]Match, error)
	Count(ctx context.Context) (int, error)
}

// Embedder turns texts into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
