package vector

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkMemoryStoreNearest(b *testing.B) {
	const dims = 384
	store, _ := NewMemoryStore(dims, nil)
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		vec := make([]float32, dims)
		vec[0] = float32(i) / 1000
		vec[i%dims] += 0.5
		_ = store.Upsert(ctx, fmt.Sprintf("user-%04d", i), vec)
	}
	q := NearestQuery{ReferenceID: "user-0500", Limit: 20}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Nearest(ctx, q)
	}
}

func BenchmarkL2Distance(b *testing.B) {
	x := make([]float32, 1536)
	y := make([]float32, 1536)
	for i := range x {
		x[i] = float32(i) / 1536
		y[i] = 1 - x[i]
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = L2Distance(x, y)
	}
}
