package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestGet_HitBeforeExpiry(t *testing.T) {
	c := New[string](time.Minute)
	c.Set("k", "v")

	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Fatalf("expected hit with %q, got %q ok=%v", "v", got, ok)
	}
}

func TestGet_MissAfterExpiry(t *testing.T) {
	c := New[string](50 * time.Millisecond)
	c.Set("k", "v")

	time.Sleep(100 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected miss after ttl elapsed")
	}
	// The expired entry must be gone, not just hidden.
	if n := c.Len(); n != 0 {
		t.Fatalf("expected 0 live entries, got %d", n)
	}
}

func TestGet_MissForUnknownKey(t *testing.T) {
	c := New[int](time.Minute)
	if v, ok := c.Get("nope"); ok || v != 0 {
		t.Fatalf("expected zero-value miss, got %d ok=%v", v, ok)
	}
}

func TestSet_ZeroTTLDisablesCaching(t *testing.T) {
	c := New[string](0)
	c.Set("k", "v")
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected every Get to miss with zero ttl")
	}
}

func TestSetTTL_OverridesDefault(t *testing.T) {
	c := New[string](50 * time.Millisecond)
	c.SetTTL("k", "v", time.Minute)

	time.Sleep(100 * time.Millisecond)

	if _, ok := c.Get("k"); !ok {
		t.Fatalf("expected entry with per-entry ttl to survive the default ttl")
	}
}

func TestSet_RefreshesExpiry(t *testing.T) {
	c := New[string](80 * time.Millisecond)
	c.Set("k", "v1")
	time.Sleep(50 * time.Millisecond)
	c.Set("k", "v2")
	time.Sleep(50 * time.Millisecond)

	got, ok := c.Get("k")
	if !ok || got != "v2" {
		t.Fatalf("expected refreshed entry v2, got %q ok=%v", got, ok)
	}
}

func TestDelete(t *testing.T) {
	c := New[string](time.Minute)
	c.Set("k", "v")
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestLen_CountsOnlyLiveEntries(t *testing.T) {
	c := New[string](60 * time.Millisecond)
	c.Set("short", "v")
	c.SetTTL("long", "v", time.Minute)

	time.Sleep(100 * time.Millisecond)

	if n := c.Len(); n != 1 {
		t.Fatalf("expected 1 live entry, got %d", n)
	}
}

func TestPurge(t *testing.T) {
	c := New[string](time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Purge()
	if n := c.Len(); n != 0 {
		t.Fatalf("expected empty cache after purge, got %d entries", n)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int](time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%10)
				c.Set(key, n)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if n := c.Len(); n != 10 {
		t.Fatalf("expected 10 live entries, got %d", n)
	}
}
