// FILE: wiretap/src/internal/middleware/ratelimiter.go
package middleware

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter limits requests per client address
type RateLimiter struct {
	mu              sync.Mutex
	clients         map[string]*clientLimiter
	perSecond       rate.Limit
	burst           int
	cleanupInterval time.Duration
	done            chan struct{}
	stopOnce        sync.Once

	allowed  atomic.Uint64
	rejected atomic.Uint64
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterStats reports limiter activity
type RateLimiterStats struct {
	ActiveClients int
	Allowed       uint64
	Rejected      uint64
	PerSecond     float64
	Burst         int
}

// NewRateLimiter creates a limiter allowing perSecond requests per client
// with the given burst. Idle client state is dropped after two cleanup
// intervals.
func NewRateLimiter(perSecond float64, burst int, cleanupInterval time.Duration) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	rl := &RateLimiter{
		clients:         make(map[string]*clientLimiter),
		perSecond:       rate.Limit(perSecond),
		burst:           burst,
		cleanupInterval: cleanupInterval,
		done:            make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Middleware rejects over-limit requests with 429. onReject, when set, is
// called with the request before the response is written.
func (rl *RateLimiter) Middleware(next http.Handler, onReject func(*http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientKey(r)) {
			if onReject != nil {
				onReject(r)
			}
			http.Error(w, "Too many connection attempts", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allow consumes one token for key
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	client, ok := rl.clients[key]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(rl.perSecond, rl.burst)}
		rl.clients[key] = client
	}
	client.lastSeen = time.Now()
	rl.mu.Unlock()

	if client.limiter.Allow() {
		rl.allowed.Add(1)
		return true
	}
	rl.rejected.Add(1)
	return false
}

// clientKey is the remote IP without its port
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.removeIdleClients(time.Now().Add(-2 * rl.cleanupInterval))
		}
	}
}

func (rl *RateLimiter) removeIdleClients(threshold time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, client := range rl.clients {
		if client.lastSeen.Before(threshold) {
			delete(rl.clients, key)
		}
	}
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) Stats() RateLimiterStats {
	rl.mu.Lock()
	active := len(rl.clients)
	rl.mu.Unlock()

	return RateLimiterStats{
		ActiveClients: active,
		Allowed:       rl.allowed.Load(),
		Rejected:      rl.rejected.Load(),
		PerSecond:     float64(rl.perSecond),
		Burst:         rl.burst,
	}
}
