package embedding

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Options selects and configures an embedding provider.
type Options struct {
	Provider          string
	Model             string
	APIKey            string
	BaseURL           string
	Dimensions        int
	ModelPath         string
	MaxTokens         int
	CacheSize         int
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// New creates the configured provider wrapped in a CachedEmbedder.
// Supported providers: "openai", "onnx", "mock" (default). A provider that cannot be built
// is replaced by a DisabledEmbedder; only an unknown provider name is an error.
func New(opts Options, logger *zap.Logger) (*CachedEmbedder, error) {
	var (
		inner Embedder
		err   error
	)
	switch opts.Provider {
	case ProviderOpenAI:
		inner, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:            opts.APIKey,
			BaseURL:           opts.BaseURL,
			Model:             opts.Model,
			Dimensions:        opts.Dimensions,
			RequestsPerSecond: opts.RequestsPerSecond,
			Burst:             opts.Burst,
		})
	case ProviderONNX:
		inner, err = NewONNXEmbedder(opts.ModelPath, opts.Dimensions, opts.MaxTokens)
	case ProviderMock, "":
		inner = NewMockEmbedder(opts.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, onnx, mock)", opts.Provider)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err != nil {
		logger.Warn("Embedding provider disabled",
			zap.String("provider", opts.Provider),
			zap.Error(err))
		inner = NewDisabledEmbedder(opts.Provider, opts.Dimensions, err)
	}

	cachedOpts := []CachedOption{WithLogger(logger)}
	if opts.Timeout > 0 {
		cachedOpts = append(cachedOpts, WithTimeout(opts.Timeout))
	}
	return NewCachedEmbedder(inner, opts.CacheSize, cachedOpts...), nil
}
