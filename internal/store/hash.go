package store

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

var _ Embedder = (*HashEmbedder)(nil)

// HashEmbedder embeds text locally with the hashing trick: each token is
// hashed into one of dim buckets and the L2-normalized bucket counts form
// the vector. It needs no external service and is fully deterministic, which
// keeps the default deployment self-contained; retrieval quality is
// bag-of-words overlap, not semantic similarity.
type HashEmbedder struct {
	dim int
}

const defaultHashDim = 256

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = defaultHashDim
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *HashEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dim)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%uint32(e.dim)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
