package embedding

import (
	"context"
	"fmt"
)

// DisabledEmbedder stands in for a provider that could not be built. Every call fails with
// ErrUnavailable, so answers are still recorded and profiles stay not ready until the
// configuration is fixed.
type DisabledEmbedder struct {
	provider   string
	dimensions int
	cause      error
}

// NewDisabledEmbedder returns an embedder that reports cause on every call.
func NewDisabledEmbedder(provider string, dimensions int, cause error) *DisabledEmbedder {
	return &DisabledEmbedder{provider: provider, dimensions: dimensions, cause: cause}
}

// Embed always fails.
func (d *DisabledEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: %s provider disabled: %w", ErrUnavailable, d.provider, d.cause)
}

// Dimensions returns the configured dimension.
func (d *DisabledEmbedder) Dimensions() int { return d.dimensions }

// Close is a no-op.
func (d *DisabledEmbedder) Close() error { return nil }
