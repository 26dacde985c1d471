package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Limiter allows each client a fixed number of requests per window.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// Config holds rate limiter configuration
type Config struct {
	Requests int
	Period   time.Duration
}

// DefaultConfig allows 60 requests per minute.
func DefaultConfig() Config {
	return Config{Requests: 60, Period: time.Minute}
}

func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Requests <= 0 {
		cfg.Requests = def.Requests
	}
	if cfg.Period <= 0 {
		cfg.Period = def.Period
	}
	return &Limiter{
		clients: make(map[string]*window),
		limit:   cfg.Requests,
		period:  cfg.Period,
		now:     time.Now,
	}
}

// Allow records a request from client and reports whether it is within the limit.
func (l *Limiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[client]
	if !ok || now.Sub(w.start) >= l.period {
		l.clients[client] = &window{start: now, count: 1}
		return true
	}
	w.count++
	return w.count <= l.limit
}

// Prune forgets clients whose window has ended and returns how many remain.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for c, w := range l.clients {
		if now.Sub(w.start) >= l.period {
			delete(l.clients, c)
		}
	}
	return len(l.clients)
}

// Run prunes stale clients every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}

// Middleware rejects clients over the limit. onLimit writes the rejection;
// when nil a plain 429 is sent.
func (l *Limiter) Middleware(extractIP func(*http.Request) string, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(l.period.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(extractIP(r)) {
				w.Header().Set("Retry-After", retryAfter)
				if onLimit != nil {
					onLimit(w, r)
					return
				}
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
