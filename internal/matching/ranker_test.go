package matching

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/soulsync/internal/models"
	"github.com/hyperjump/soulsync/internal/storage"
	"github.com/hyperjump/soulsync/internal/vector"
)

type testEnv struct {
	st *storage.SQLStorage
	vs *vector.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	vs, err := vector.NewMemoryStore(2, st)
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{st: st, vs: vs}
}

func (e *testEnv) user(t *testing.T, id string, eligible bool, vec []float32) {
	t.Helper()
	ctx := context.Background()
	u := &models.User{ID: id, DisplayName: "Name " + id, Active: eligible, EmailVerified: eligible}
	if err := e.st.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	if vec != nil {
		if err := e.vs.Upsert(ctx, id, vec); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRanker_RankMatches(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "me", true, []float32{0, 0})
	env.user(t, "far", true, []float32{3, 4})
	env.user(t, "close", true, []float32{0.1, 0})
	env.user(t, "mid", true, []float32{0, 0.5})
	env.user(t, "hidden", false, []float32{0.01, 0})
	env.user(t, "fresh", true, nil)

	r := NewRanker(env.st, env.vs, WithLogger(zap.NewNop()))
	got, err := r.RankMatches(context.Background(), "me", 20)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		id      string
		percent int
	}{
		{"close", 90},
		{"mid", 50},
		{"far", 1},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].UserID != w.id || got[i].ConfidencePercent != w.percent {
			t.Errorf("candidate %d = %s/%d%%, want %s/%d%%", i, got[i].UserID, got[i].ConfidencePercent, w.id, w.percent)
		}
		if got[i].Fallback {
			t.Errorf("candidate %d marked as fallback", i)
		}
		if got[i].DisplayName != "Name "+w.id {
			t.Errorf("candidate %d display name %q", i, got[i].DisplayName)
		}
	}
	// Similarity is not clamped before the confidence mapping.
	if math.Abs(got[2].Similarity-(-4)) > 1e-6 {
		t.Errorf("similarity of far = %v, want -4", got[2].Similarity)
	}

	limited, _ := r.RankMatches(context.Background(), "me", 2)
	if len(limited) != 2 || limited[0].UserID != "close" {
		t.Errorf("limit 2: %+v", limited)
	}
	for _, c := range got {
		if c.UserID == "me" {
			t.Error("user matched with themself")
		}
	}
}

func TestRanker_Preconditions(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "inactive", false, []float32{1, 1})
	env.user(t, "new", true, nil)
	env.user(t, "other", true, []float32{1, 0})
	r := NewRanker(env.st, env.vs)
	ctx := context.Background()

	tests := []struct {
		userID string
		want   error
		kind   Kind
	}{
		{"ghost", ErrUserNotEligible, KindNotEligible},
		{"inactive", ErrUserNotEligible, KindNotEligible},
		{"new", ErrProfileNotReady, KindProfileNotReady},
	}
	for _, tt := range tests {
		t.Run(tt.userID, func(t *testing.T) {
			_, err := r.RankMatches(ctx, tt.userID, 10)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if KindOf(err) != tt.kind {
				t.Errorf("KindOf = %s, want %s", KindOf(err), tt.kind)
			}
		})
	}
}

func TestRanker_Fallback(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "me", true, []float32{0, 0})
	for _, id := range []string{"b", "c", "d"} {
		env.user(t, id, true, nil)
	}
	env.user(t, "inactive", false, []float32{0, 1})
	r := NewRanker(env.st, env.vs)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		got, err := r.RankMatches(context.Background(), "me", 20)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 {
			t.Fatalf("fallback must return exactly one candidate, got %d", len(got))
		}
		c := got[0]
		if !c.Fallback || c.Similarity != 0 || c.ConfidencePercent != MinConfidence {
			t.Fatalf("unexpected fallback candidate %+v", c)
		}
		if c.UserID == "me" || c.UserID == "inactive" {
			t.Fatalf("fallback picked %s", c.UserID)
		}
		seen[c.UserID] = true
	}
	if len(seen) < 2 {
		t.Errorf("fallback should vary across draws, saw %v", seen)
	}
}

func TestRanker_NoEligibleUsers(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "alone", true, []float32{0, 0})
	env.user(t, "inactive", false, []float32{0, 1})
	_, err := NewRanker(env.st, env.vs).RankMatches(context.Background(), "alone", 20)
	if !errors.Is(err, ErrNoEligibleUsers) {
		t.Errorf("expected ErrNoEligibleUsers, got %v", err)
	}
}

// brokenStore fails Nearest with a fixed error, or blocks until the context ends.
type brokenStore struct {
	*vector.MemoryStore
	err   error
	block bool
}

func (b *brokenStore) Nearest(ctx context.Context, q vector.NearestQuery) ([]*vector.Neighbor, error) {
	if b.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, b.err
}

func TestRanker_StoreFailures(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "me", true, []float32{0, 0})
	env.user(t, "other", true, nil)

	tests := []struct {
		name  string
		store *brokenStore
		want  error
		kind  Kind
	}{
		{"outage", &brokenStore{MemoryStore: env.vs, err: errors.New("connection reset")}, ErrUnavailable, KindUnavailable},
		{"timeout", &brokenStore{MemoryStore: env.vs, block: true}, ErrUnavailable, KindUnavailable},
		{"dimension mismatch", &brokenStore{MemoryStore: env.vs, err: vector.ErrDimensionMismatch}, vector.ErrDimensionMismatch, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRanker(env.st, tt.store, WithQueryTimeout(20*time.Millisecond))
			got, err := r.RankMatches(context.Background(), "me", 5)
			if got != nil {
				t.Errorf("store failure must not produce candidates: %+v", got)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if KindOf(err) != tt.kind {
				t.Errorf("KindOf = %s, want %s", KindOf(err), tt.kind)
			}
		})
	}
}

func TestFallback_Pick(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "me", true, nil)
	f := NewFallback(env.st)
	if _, err := f.Pick(context.Background(), "me"); !errors.Is(err, ErrNoEligibleUsers) {
		t.Errorf("expected ErrNoEligibleUsers, got %v", err)
	}
	env.user(t, "you", true, nil)
	c, err := f.Pick(context.Background(), "me")
	if err != nil {
		t.Fatal(err)
	}
	if c.UserID != "you" || !c.Fallback {
		t.Errorf("got %+v", c)
	}
}
