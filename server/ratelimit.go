package server

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// rateLimiter caps attempts per key within a sliding window.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	hits    map[string][]time.Time
	nowTime func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		hits:    make(map[string][]time.Time),
		nowTime: time.Now,
	}
}

func (l *rateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowTime()
	cutoff := now.Add(-l.window)

	recent := l.hits[key][:0]
	for _, hit := range l.hits[key] {
		if hit.After(cutoff) {
			recent = append(recent, hit)
		}
	}

	if len(recent) >= l.limit {
		l.hits[key] = recent
		return false
	}

	l.hits[key] = append(recent, now)
	return true
}

// LoginRateLimitMiddleware caps login attempts per source address. A 429
// is terminal and non-retryable for the client.
func (s *Server) LoginRateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.loginLimiter.allow(sourceAddress(r)) {
			respondError(w, http.StatusTooManyRequests, "Too many login attempts", "Too many login attempts, please try again later")
			return
		}
		next(w, r)
	}
}

func sourceAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
