// Package embedding defines the embedding provider port used by the indexing
// pipeline and the vector retrieval channel.
package embedding

import (
	"context"
	"fmt"
)

// Result is one embedding with its token accounting.
type Result struct {
	Vector     []float32
	TokensUsed int
}

// Provider turns text into a vector. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Embed returns the embedding for the given text.
	Embed(ctx context.Context, text string) (Result, error)
	// VectorLength returns the dimensionality of produced vectors.
	VectorLength() int
}

// ProviderError carries the upstream HTTP status so callers can decide
// whether a failure is transient.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider error (status %d): %s", e.StatusCode, e.Message)
}

// Transient reports whether retrying the request may succeed.
func (e *ProviderError) Transient() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
