package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// TTL is a bounded least-recently-used cache whose entries expire after a
// fixed time to live. Safe for concurrent use.
type TTL[V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	index   map[string]*list.Element
	order   *list.List
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// Option configures a TTL cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewTTL returns an empty cache holding at most maxSize entries.
// A non-positive ttl disables caching: Set becomes a no-op.
func NewTTL[V any](maxSize int, ttl time.Duration, opts ...Option) *TTL[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if maxSize < 1 {
		maxSize = 1
	}
	return &TTL[V]{
		maxSize: maxSize,
		ttl:     ttl,
		now:     o.now,
		index:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.index[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[V])
	if !c.now().Before(e.expiresAt) {
		c.remove(el)
		return zero, false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

func (c *TTL[V]) Set(key string, value V) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[V]{key: key, value: value, expiresAt: c.now().Add(c.ttl)}
	if el, ok := c.index[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}
	c.index[key] = c.order.PushFront(e)
	for c.order.Len() > c.maxSize {
		c.remove(c.order.Back())
	}
}

// Invalidate drops key. Missing keys are ignored.
func (c *TTL[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.remove(el)
	}
}

func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Sweep removes expired entries and reports how many were dropped.
func (c *TTL[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	dropped := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*entry[V]).expiresAt) {
			c.remove(el)
			dropped++
		}
		el = prev
	}
	return dropped
}

func (c *TTL[V]) remove(el *list.Element) {
	delete(c.index, el.Value.(*entry[V]).key)
	c.order.Remove(el)
}

// Sweeper is anything with expired entries to drop.
type Sweeper interface {
	Sweep() int
}

// RunJanitor sweeps every cache at each interval until ctx is done. The
// callback, when not nil, receives the number of entries dropped per round.
func RunJanitor(ctx context.Context, interval time.Duration, onSweep func(dropped int), caches ...Sweeper) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := 0
			for _, c := range caches {
				total += c.Sweep()
			}
			if onSweep != nil {
				onSweep(total)
			}
		}
	}
}
