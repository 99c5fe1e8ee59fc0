package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sitesage/sitesage/internal/chunk"
)

// Ensure Memory implements the interface.
var _ VectorStore = (*Memory)(nil)

type memoryEntry struct {
	chunk  chunk.Chunk
	vector []float32
}

// Memory is an in-memory VectorStore. Each Upsert and Delete batch is
// applied under a single lock acquisition, so concurrent readers observe
// whole batches, never partial ones.
type Memory struct {
	embedder Embedder

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemory(embedder Embedder) *Memory {
	return &Memory{embedder: embedder, entries: make(map[string]memoryEntry)}
}

func (m *Memory) Upsert(ctx context.Context, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := m.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ch := range chunks {
		m.entries[ch.ID] = memoryEntry{chunk: ch, vector: vectors[i]}
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

func (m *Memory) Query(ctx context.Context, text string, topN int) ([]Match, error) {
	if topN <= 0 {
		return nil, nil
	}
	vectors, err := m.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vectors))
	}
	qv := vectors[0]

	m.mu.RLock()
	matches := make([]Match, 0, len(m.entries))
	for _, e := range m.entries {
		matches = append(matches, Match{Chunk: e.chunk, Score: CosineSimilarity(qv, e.vector)})
	}
	m.mu.RUnlock()

	// Deterministic order so the top-N cut is stable under score ties.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Chunk.SequenceIndex != matches[j].Chunk.SequenceIndex {
			return matches[i].Chunk.SequenceIndex < matches[j].Chunk.SequenceIndex
		}
		return matches[i].Chunk.SourceURL < matches[j].Chunk.SourceURL
	})
	if len(matches) > topN {
		matches = matches[:topN]
	}
	return matches, nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// CosineSimilarity returns cosine similarity clamped into [0,1]; vectors
// pointing away from each other score zero rather than negative.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	switch {
	case sim < 0:
		return 0
	case sim > 1:
		return 1
	default:
		return sim
	}
}
