// Package ratelimit limits requests per client IP with token buckets.
package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pendergraft/contraship/internal/middleware/realip"
)

// Config holds the limiter settings
type Config struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	// CleanupMinutes is both the pruning interval and the idle time after
	// which a client's bucket is dropped
	CleanupMinutes int
	// ExemptPaths bypass the limiter entirely
	ExemptPaths []string
}

// DefaultExemptPaths are the probe endpoints
var DefaultExemptPaths = []string{"/health", "/healthz", "/readyz"}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one bucket per client IP
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	rate    rate.Limit
	burst   int
	idle    time.Duration
	exempt  map[string]bool
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a RateLimiter and starts its pruning loop. Call Stop to end it.
func New(cfg Config) *RateLimiter {
	idle := time.Duration(cfg.CleanupMinutes) * time.Minute
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	exemptPaths := cfg.ExemptPaths
	if exemptPaths == nil {
		exemptPaths = DefaultExemptPaths
	}
	exempt := make(map[string]bool, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = true
	}

	rl := &RateLimiter{
		clients: make(map[string]*client),
		rate:    rate.Limit(float64(cfg.RequestsPerMin) / 60.0),
		burst:   cfg.BurstSize,
		idle:    idle,
		exempt:  exempt,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go rl.pruneLoop()
	return rl
}

// Stop ends the pruning loop. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) pruneLoop() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.pruneStale()
		case <-rl.stopCh:
			return
		}
	}
}

// pruneStale drops buckets idle for longer than the cleanup interval
func (rl *RateLimiter) pruneStale() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idle)
	for ip, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if c, ok := rl.clients[ip]; ok {
		c.lastSeen = now
		return c.limiter
	}
	l := rate.NewLimiter(rl.rate, rl.burst)
	rl.clients[ip] = &client{limiter: l, lastSeen: now}
	return l
}

// retryAfter is the number of whole seconds until l has a token again
func retryAfter(l *rate.Limiter, now time.Time) int {
	r := l.ReserveN(now, 1)
	if !r.OK() {
		return 60
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return max(1, int(math.Ceil(delay.Seconds())))
}

// Middleware rejects clients over their budget with 429 and a Retry-After
// header.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.exempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			l := rl.limiterFor(realip.GetClientIP(r))
			now := rl.now()
			if l.AllowN(now, 1) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter(l, now)))
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Too many requests. Please try again later.",
				},
			})
		})
	}
}

// Middleware builds a limiter from cfg, or a pass-through when disabled.
// The limiter's pruning loop lives as long as the process.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return New(cfg).Middleware()
}
