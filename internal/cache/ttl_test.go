package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestTTLExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)}
	c := NewTTL[int](4, time.Minute, WithClock(clock.now))

	c.Set("2025", 7)
	if v, ok := c.Get("2025"); !ok || v != 7 {
		t.Fatalf("expected hit, got %d %v", v, ok)
	}
	clock.advance(time.Minute)
	if _, ok := c.Get("2025"); ok {
		t.Fatalf("expected entry to expire")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry not removed on read")
	}
}

func TestTTLEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewTTL[string](2, time.Hour)
	c.Set("a", "A")
	c.Set("b", "B")
	c.Get("a")
	c.Set("c", "C")

	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("expected %s to survive", k)
		}
	}
}

func TestTTLInvalidateAndDisabled(t *testing.T) {
	c := NewTTL[int](2, time.Hour)
	c.Set("x", 1)
	c.Invalidate("x")
	c.Invalidate("missing")
	if _, ok := c.Get("x"); ok {
		t.Fatalf("expected x to be gone")
	}

	off := NewTTL[int](2, 0)
	off.Set("x", 1)
	if off.Len() != 0 {
		t.Fatalf("zero ttl must not store entries")
	}
}

func TestSweep(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := NewTTL[int](8, time.Second, WithClock(clock.now))
	c.Set("old", 1)
	clock.advance(500 * time.Millisecond)
	c.Set("new", 2)
	clock.advance(600 * time.Millisecond)

	if n := c.Sweep(); n != 1 {
		t.Fatalf("expected 1 swept entry, got %d", n)
	}
	if _, ok := c.Get("new"); !ok {
		t.Fatalf("fresh entry swept")
	}
}

func TestRunJanitorStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunJanitor(ctx, time.Millisecond, nil, NewTTL[int](1, time.Second))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("janitor did not stop")
	}
}
