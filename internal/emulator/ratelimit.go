package emulator

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter throttles callers with a fixed one-minute window per client key, so
// clients can be exercised against 429 responses.
type RateLimiter struct {
	perMinute int
	now       func() time.Time

	mu      sync.Mutex
	clients map[string]*window
	hits    int64
}

type window struct {
	start    time.Time
	requests int
}

// NewRateLimiter allows perMinute requests per client. perMinute <= 0 allows everything.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		now:       time.Now,
		clients:   make(map[string]*window),
	}
}

// Allow records a request for key and reports whether it fits in the current window.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.perMinute <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.clients[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		rl.clients[key] = &window{start: now, requests: 1}
		return true
	}
	w.requests++
	if w.requests > rl.perMinute {
		rl.hits++
		return false
	}
	return true
}

// Sweep drops windows that have expired and returns how many were removed.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	cutoff := rl.now().Add(-time.Minute)
	for key, w := range rl.clients {
		if w.start.Before(cutoff) {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

// Hits returns how many requests were rejected.
func (rl *RateLimiter) Hits() int64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.hits
}

// Middleware rejects over-limit requests with 429 and a Retry-After header.
// Callers are keyed by bearer token, falling back to the remote address.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(60))
			writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && tok != "" {
		return "token:" + tok
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return "addr:" + host
}
