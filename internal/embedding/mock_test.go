package embedding

import (
	"context"
	"math"
	"testing"
)

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(8)
	ctx := context.Background()
	a, err := e.Embed(ctx, "Looking for: hiking partner")
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 8 || e.Dimensions() != 8 {
		t.Fatalf("dimensions: %d / %d", len(a), e.Dimensions())
	}
	again, _ := e.Embed(ctx, "Looking for: hiking partner")
	for i := range a {
		if a[i] != again[i] {
			t.Fatal("embedding should be deterministic")
		}
	}
	var norm float64
	for _, v := range a {
		norm += float64(v * v)
	}
	if math.Abs(norm-1) > 1e-4 {
		t.Errorf("expected unit vector, |v|^2 = %v", norm)
	}

	b, _ := e.Embed(ctx, "Looking for: chess partner")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
		}
	}
	if same {
		t.Error("different texts should produce different embeddings")
	}

	if NewMockEmbedder(0).Dimensions() != 384 {
		t.Error("default dimensions should be 384")
	}
}

func TestMockEmbedder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockEmbedder(4).Embed(ctx, "x"); err == nil {
		t.Error("expected error on cancelled context")
	}
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := NewMockEmbedder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "Looking for: someone kind\n\nJourney Q&A:\nQ1: Ideal weekend?\nA1: hiking")
	}
}

func BenchmarkCachedEmbedder_Hit(b *testing.B) {
	e := NewCachedEmbedder(NewMockEmbedder(384), 16)
	ctx := context.Background()
	_, _ = e.Embed(ctx, "profile text")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "profile text")
	}
}
