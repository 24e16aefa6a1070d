package embedding

import (
	"testing"
)

func TestCache_GetSet(t *testing.T) {
	c := NewCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	// a becomes most recent, so c evicts b.
	c.Get("a")
	c.Set("c", []float32{6})
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to remain")
	}
	if c.Len() != 2 {
		t.Errorf("Len=%d, want 2", c.Len())
	}
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := NewCache(1)
	in := []float32{1, 2}
	c.Set("k", in)
	in[0] = 99
	out, _ := c.Get("k")
	if out[0] != 1 {
		t.Error("cache must not alias the caller's slice")
	}
	out[1] = 42
	again, _ := c.Get("k")
	if again[1] != 2 {
		t.Error("cache must not hand out its own slice")
	}
}

func TestCache_Disabled(t *testing.T) {
	c := NewCache(0)
	c.Set("k", []float32{1})
	if _, ok := c.Get("k"); ok {
		t.Error("zero-capacity cache should never hit")
	}
}
