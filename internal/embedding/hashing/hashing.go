// Package hashing implements a local embedder based on the hashing trick:
// every term is hashed into one of a fixed number of signed buckets, so no
// vocabulary has to be built before indexing and vectors stay comparable
// across runs.
package hashing

import (
	"context"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"docqa/internal/textutil"
)

const DefaultDimension = 1024

// Embedder is a stateless term-frequency embedder over hashed features.
type Embedder struct {
	dimension int
}

// NewEmbedder returns an embedder with the given dimension (DefaultDimension
// when non-positive).
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

func (e *Embedder) ModelName() string { return fmt.Sprintf("hashing-%d", e.dimension) }

func (e *Embedder) Dimension() int { return e.dimension }

// Embed returns the L2-normalised, sign-hashed term frequency vector of text.
// Text without any non-stopword term maps to the zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, e.dimension)
	terms := textutil.Terms(text)
	if len(terms) == 0 {
		return make([]float32, e.dimension), nil
	}
	total := float64(len(terms))
	for _, term := range terms {
		h := xxhash.Sum64String(term)
		idx := h % uint64(e.dimension)
		if h>>63 == 1 {
			vec[idx] -= 1 / total
		} else {
			vec[idx] += 1 / total
		}
	}
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, e.dimension)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
