package answer

import (
	"context"
	"fmt"
	"sort"

	"github.com/sitesage/sitesage/internal/chunk"
	"github.com/sitesage/sitesage/internal/store"
)

// DefaultSources is how many chunks a question retrieves when the caller
// does not say.
const DefaultSources = 5

// Evidence is one retrieved chunk with its relevance to the question.
type Evidence struct {
	Chunk     chunk.Chunk
	Relevance float64
}

// EvidenceSource yields the chunks most relevant to a question, best first.
type EvidenceSource interface {
	Retrieve(ctx context.Context, question string, n int) ([]Evidence, error)
}

// Retriever queries the vector store and applies the relevance floor.
// Results below the floor are dropped rather than surfaced as weak
// evidence; an empty result is a valid outcome, not an error.
type Retriever struct {
	store        store.VectorStore
	minRelevance float64
}

var _ EvidenceSource = (*Retriever)(nil)

func NewRetriever(vs store.VectorStore, minRelevance float64) *Retriever {
	return &Retriever{store: vs, minRelevance: minRelevance}
}

func (r *Retriever) Retrieve(ctx context.Context, question string, n int) ([]Evidence, error) {
	if n <= 0 {
		n = DefaultSources
	}
	matches, err := r.store.Query(ctx, question, n)
	if err != nil {
		return nil, fmt.Errorf("query vector store: %w", err)
	}

	var evidence []Evidence
	for _, m := range matches {
		switch {
		case m.Score < 0:
			m.Score = 0
		case m.Score > 1:
			m.Score = 1
		}
		if m.Score < r.minRelevance {
			continue
		}
		evidence = append(evidence, Evidence{Chunk: m.Chunk, Relevance: m.Score})
	}

	// Relevance descending, ties by sequence index then source URL,
	// regardless of how the store adapter ordered its matches.
	sort.SliceStable(evidence, func(i, j int) bool {
		if evidence[i].Relevance != evidence[j].Relevance {
			return evidence[i].Relevance > evidence[j].Relevance
		}
		if evidence[i].Chunk.SequenceIndex != evidence[j].Chunk.SequenceIndex {
			return evidence[i].Chunk.SequenceIndex < evidence[j].Chunk.SequenceIndex
		}
		return evidence[i].Chunk.SourceURL < evidence[j].Chunk.SourceURL
	})
	return evidence, nil
}
