// Package embedding provides the optional semantic-ranking input to the
// Searcher (spec §4.3): a Provider turns free text into a fixed-length
// vector that Store.GetEmbedding/SetEmbedding persist and the Searcher
// compares by cosine similarity. No provider configured, or a provider
// call failing, degrades to lexical-only search (spec §7:
// ProviderUnavailable).
package embedding

import (
	"context"
	"errors"
	"math"
)

// ErrUnavailable is returned by a Provider that cannot currently produce an
// embedding (missing credentials, network failure, rate limited). Callers
// treat this identically to "no provider configured".
var ErrUnavailable = errors.New("embedding: provider unavailable")

// Provider turns text into a vector. Implementations MUST return the same
// dimensionality for every call so stored vectors remain comparable.
type Provider interface {
	// Embed returns the vector for text, and the provider's model
	// identifier (stored alongside the vector so a later model switch can
	// be detected and vectors recomputed).
	Embed(ctx context.Context, text string) (vector []float32, model string, err error)
}

// Noop is the zero-configuration Provider: every call fails with
// ErrUnavailable, so the Searcher falls back to lexical-only ranking.
// This is the default when no embedding provider is configured (spec §6:
// "embedding provider selection" is an operator-facing, optional knob).
type Noop struct{}

func (Noop) Embed(context.Context, string) ([]float32, string, error) {
	return nil, "", ErrUnavailable
}

var _ Provider = Noop{}

// CosineSimilarity computes the cosine similarity between two equal-length
// vectors. Returns 0 for mismatched lengths or zero-magnitude vectors
// rather than erroring, since Searcher treats an unusable comparison as "no
// semantic signal" for that pair, not a hard failure.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
