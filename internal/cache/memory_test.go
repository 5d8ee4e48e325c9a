package cache

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
)

// TestMemoryCache_BasicOperations tests get, put and delete.
func TestMemoryCache_BasicOperations(t *testing.T) {
	c := NewMemoryCache(1024)

	if _, ok := c.Get("missing"); ok {
		t.Error("Expected miss on empty cache")
	}
	if err := c.Put("a", []byte("hello")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, ok := c.Get("a")
	if !ok || !bytes.Equal(got, []byte("hello")) {
		t.Errorf("Get(a) = %q, %v", got, ok)
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("Expected miss after Delete")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 2 {
		t.Errorf("Hits/Misses = %d/%d, want 1/2", stats.Hits, stats.Misses)
	}
	if stats.Size != 0 || stats.Items != 0 {
		t.Errorf("Expected empty cache, got %+v", stats)
	}
}

// TestMemoryCache_LRUEviction tests that the least recently used entry goes
// first.
func TestMemoryCache_LRUEviction(t *testing.T) {
	c := NewMemoryCache(30)

	_ = c.Put("a", make([]byte, 10))
	_ = c.Put("b", make([]byte, 10))
	_ = c.Put("c", make([]byte, 10))
	c.Get("a") // a is now most recent
	_ = c.Put("d", make([]byte, 10))

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should still be cached", k)
		}
	}
	if ev := c.Stats().Evictions; ev != 1 {
		t.Errorf("Evictions = %d, want 1", ev)
	}
}

// TestMemoryCache_ItemTooLarge tests the size bound.
func TestMemoryCache_ItemTooLarge(t *testing.T) {
	c := NewMemoryCache(8)
	if err := c.Put("big", make([]byte, 9)); err != ErrItemTooLarge {
		t.Errorf("Expected ErrItemTooLarge, got %v", err)
	}
}

// TestMemoryCache_UpdateExisting tests that replacing a value keeps size
// accounting right.
func TestMemoryCache_UpdateExisting(t *testing.T) {
	c := NewMemoryCache(100)
	_ = c.Put("a", make([]byte, 10))
	_ = c.Put("a", make([]byte, 30))

	if s := c.Stats(); s.Size != 30 || s.Items != 1 {
		t.Errorf("Expected one 30 byte entry, got %+v", s)
	}
}

// TestMemoryCache_Clear tests Clear.
func TestMemoryCache_Clear(t *testing.T) {
	c := NewMemoryCache(100)
	_ = c.Put("a", []byte("x"))
	_ = c.Put("b", []byte("y"))
	c.Clear()

	if s := c.Stats(); s.Size != 0 || s.Items != 0 {
		t.Errorf("Expected empty cache after Clear, got %+v", s)
	}
}

// TestMemoryCache_ConcurrentAccess tests the cache under the race detector.
func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c := NewMemoryCache(1 << 10)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 50 {
				key := fmt.Sprintf("k%d", (i+j)%16)
				_ = c.Put(key, make([]byte, 32))
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if s := c.Stats(); s.Size > 1<<10 {
		t.Errorf("Size %d exceeds capacity", s.Size)
	}
}
