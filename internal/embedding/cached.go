package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/soulsync/internal/fingerprint"
)

// CachedEmbedder wraps an Embedder with an LRU cache keyed by text fingerprint, coalesces
// identical in-flight texts into a single collaborator call, and bounds every call by a timeout.
// Every failure it returns wraps ErrUnavailable.
type CachedEmbedder struct {
	inner   Embedder
	cache   *Cache
	group   singleflight.Group
	timeout time.Duration
	logger  *zap.Logger
}

// CachedOption configures a CachedEmbedder.
type CachedOption func(*CachedEmbedder)

// WithTimeout bounds each collaborator call.
func WithTimeout(d time.Duration) CachedOption {
	return func(c *CachedEmbedder) {
		c.timeout = d
	}
}

// WithLogger sets the logger for cache misses and rejected vectors.
func WithLogger(logger *zap.Logger) CachedOption {
	return func(c *CachedEmbedder) {
		c.logger = logger
	}
}

// NewCachedEmbedder wraps inner with a cache of cacheSize entries.
func NewCachedEmbedder(inner Embedder, cacheSize int, opts ...CachedOption) *CachedEmbedder {
	c := &CachedEmbedder{
		inner:   inner,
		cache:   NewCache(cacheSize),
		timeout: 20 * time.Second,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed returns the embedding for text, from cache when available.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrUnavailable)
	}
	key := fingerprint.TextKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	// The shared call must not be cancelled by whichever caller happened to start it.
	ch := c.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		start := time.Now()
		vec, err := c.inner.Embed(callCtx, text)
		if err != nil {
			return nil, err
		}
		if err := c.validate(vec); err != nil {
			return nil, err
		}
		c.logger.Debug("Embedded text",
			zap.String("key", key),
			zap.Int("dimensions", len(vec)),
			zap.Duration("duration", time.Since(start)),
		)
		c.cache.Set(key, vec)
		return vec, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, ErrUnavailable) {
				return nil, res.Err
			}
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, res.Err)
		}
		return append([]float32(nil), res.Val.([]float32)...), nil
	}
}

func (c *CachedEmbedder) validate(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrUnavailable)
	}
	if want := c.inner.Dimensions(); want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d dimensions, expected %d", ErrUnavailable, len(vec), want)
	}
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: non-finite component", ErrUnavailable)
		}
	}
	return nil
}

// Dimensions returns the wrapped embedder's dimension.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Close closes the wrapped embedder.
func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}
