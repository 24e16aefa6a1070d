package embedding

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingEmbedder counts calls and can be told to fail, block or return odd vectors.
type countingEmbedder struct {
	calls   atomic.Int32
	dims    int
	err     error
	vec     []float32
	release chan struct{}
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.release != nil {
		select {
		case <-e.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	if e.vec != nil {
		return e.vec, nil
	}
	return NewMockEmbedder(e.dims).Embed(ctx, text)
}

func (e *countingEmbedder) Dimensions() int { return e.dims }
func (e *countingEmbedder) Close() error    { return nil }

func TestCachedEmbedder_Caches(t *testing.T) {
	inner := &countingEmbedder{dims: 4}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	a, err := c.Embed(ctx, "profile text")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Embed(ctx, "profile text")
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls.Load() != 1 {
		t.Errorf("expected 1 collaborator call, got %d", inner.calls.Load())
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("cached embedding differs")
		}
	}
	if _, err := c.Embed(ctx, "other text"); err != nil {
		t.Fatal(err)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", inner.calls.Load())
	}
}

func TestCachedEmbedder_CoalescesConcurrentCalls(t *testing.T) {
	inner := &countingEmbedder{dims: 4, release: make(chan struct{})}
	c := NewCachedEmbedder(inner, 10)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Embed(context.Background(), "same text")
			errs <- err
		}()
	}
	// Let the goroutines pile up on the in-flight call before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(inner.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if n := inner.calls.Load(); n != 1 {
		t.Errorf("expected identical in-flight texts to share one call, got %d", n)
	}
}

func TestCachedEmbedder_Failures(t *testing.T) {
	tests := []struct {
		name  string
		inner *countingEmbedder
		text  string
	}{
		{"collaborator error", &countingEmbedder{dims: 4, err: errors.New("connection refused")}, "x"},
		{"empty vector", &countingEmbedder{dims: 4, vec: []float32{}}, "x"},
		{"wrong dimensions", &countingEmbedder{dims: 4, vec: []float32{1, 2}}, "x"},
		{"NaN component", &countingEmbedder{dims: 2, vec: []float32{1, float32(math.NaN())}}, "x"},
		{"blank text", &countingEmbedder{dims: 4}, "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCachedEmbedder(tt.inner, 10)
			_, err := c.Embed(context.Background(), tt.text)
			if !errors.Is(err, ErrUnavailable) {
				t.Errorf("expected ErrUnavailable, got %v", err)
			}
		})
	}
}

func TestCachedEmbedder_FailureNotCached(t *testing.T) {
	inner := &countingEmbedder{dims: 4, err: errors.New("boom")}
	c := NewCachedEmbedder(inner, 10)
	if _, err := c.Embed(context.Background(), "t"); err == nil {
		t.Fatal("expected error")
	}
	inner.err = nil
	if _, err := c.Embed(context.Background(), "t"); err != nil {
		t.Fatalf("retry after failure should succeed: %v", err)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", inner.calls.Load())
	}
}

func TestCachedEmbedder_Timeout(t *testing.T) {
	inner := &countingEmbedder{dims: 4, release: make(chan struct{})}
	defer close(inner.release)
	c := NewCachedEmbedder(inner, 10, WithTimeout(20*time.Millisecond))
	_, err := c.Embed(context.Background(), "slow")
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected unavailable deadline error, got %v", err)
	}
}
