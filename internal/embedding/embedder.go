// Package embedding turns profile texts into fixed-dimension vectors through an external
// text-embedding collaborator (OpenAI, a local ONNX model, or a deterministic mock).
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable marks a failed embedding call: the collaborator was unreachable, timed out,
// is misconfigured, or returned an unusable vector. Callers skip the update and retry later.
var ErrUnavailable = errors.New("embedding unavailable")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
	ProviderMock   = "mock"
)
