package ai

import (
	"context"
	"fmt"
	"math"
)

type IEmbedder interface {
	Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error)
	ModelName() string
}

type embedder struct {
	provider IEmbedProvider
	model    string
	dim      int
}

// NewEmbedder binds a provider to a model. When dim > 0 every returned vector
// must have exactly dim components.
func NewEmbedder(p IEmbedProvider, model string, dim int) IEmbedder {
	return &embedder{provider: p, model: model, dim: dim}
}

func (e *embedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vectors, err := e.provider.Embed(ctx, e.model, texts, taskType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEmbedding, e.provider.Name(), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", ErrEmbedding, e.provider.Name(), len(vectors), len(texts))
	}
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		if e.dim > 0 && len(v) != e.dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrEmbedding, i, len(v), e.dim)
		}
		n, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("%w: vector %d: %w", ErrEmbedding, i, err)
		}
		out[i] = n
	}
	return out, nil
}

func (e *embedder) ModelName() string {
	return e.model
}

// Normalize returns a copy of v scaled to unit L2 norm.
func Normalize(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("empty vector")
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("vector norm is not finite and positive")
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}
