package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the request budget per client and window.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
	// Cost is how much of the budget a request consumes. Defaults to 1.
	Cost func(*http.Request) int
	// Skip exempts requests from limiting, e.g. health probes.
	Skip func(*http.Request) bool
}

// SkipPaths returns a Skip func matching the exact URL paths given.
func SkipPaths(paths ...string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.URL.Path]
		return ok
	}
}

// RouteCosts returns a Cost func charging costs[pattern] for requests whose
// mux pattern is listed and 1 for everything else.
func RouteCosts(find RouteFinder, costs map[string]int) func(*http.Request) int {
	return func(r *http.Request) int {
		if pattern, ok := find(r); ok {
			if c, ok := costs[pattern]; ok && c > 0 {
				return c
			}
		}
		return 1
	}
}

// slidingWindow counts usage in the current fixed window and weights the
// previous one by how much of it still overlaps the sliding window.
type slidingWindow struct {
	start time.Time
	curr  float64
	prev  float64
}

func (s *slidingWindow) advance(now time.Time, size time.Duration) {
	if now.Sub(s.start) < size {
		return
	}
	if now.Sub(s.start) < 2*size {
		s.prev = s.curr
	} else {
		s.prev = 0
	}
	s.curr = 0
	s.start = now.Truncate(size)
}

func (s *slidingWindow) used(now time.Time, size time.Duration) float64 {
	overlap := 1 - now.Sub(s.start).Seconds()/size.Seconds()
	return s.prev*max(overlap, 0) + s.curr
}

type decision struct {
	allowed   bool
	remaining int
	resetAt   time.Time
}

type rateLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*slidingWindow
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Cost == nil {
		cfg.Cost = func(*http.Request) int { return 1 }
	}
	return &rateLimiter{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string]*slidingWindow),
	}
}

// take charges cost against key when the budget allows it. A request costing
// more than the whole budget is admitted only into an empty window.
func (rl *rateLimiter) take(key string, cost int) decision {
	now := rl.now()
	size := rl.cfg.Window
	limit := float64(rl.cfg.Max)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok {
		w = &slidingWindow{start: now}
		rl.windows[key] = w
	}
	w.advance(now, size)

	used := w.used(now, size)
	d := decision{resetAt: w.start.Add(size)}
	if used >= limit || (used > 0 && used+float64(cost) > limit) {
		return d
	}
	w.curr += float64(cost)
	d.allowed = true
	d.remaining = max(int(limit-used-float64(cost)), 0)
	return d
}

// evict drops clients idle for two full windows.
func (rl *rateLimiter) evict() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, w := range rl.windows {
		if now.Sub(w.start) >= 2*rl.cfg.Window {
			delete(rl.windows, key)
		}
	}
}

func (rl *rateLimiter) evictUntilDone(ctx context.Context) {
	ticker := time.NewTicker(2 * rl.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

// RateLimit returns a middleware enforcing a per-client sliding window
// budget. Over the budget it responds 429 RATE_LIMITED with Retry-After.
// Every non-skipped response carries X-RateLimit-* headers.
//
// Idle clients are never evicted; see RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newRateLimiter(cfg).middleware
}

// RateLimitWithCleanup is like RateLimit but evicts idle clients every two
// windows until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	go rl.evictUntilDone(ctx)
	return rl.middleware
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.cfg.Skip != nil && rl.cfg.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}
		key := rl.cfg.KeyFunc(r)
		d := rl.take(key, rl.cfg.Cost(r))

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.resetAt.Unix(), 10))
		if d.allowed {
			next.ServeHTTP(w, r)
			return
		}

		wait := max(d.resetAt.Sub(rl.now()), 0)
		h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		zctx.From(r.Context()).Debug("Rate limited", zap.String("key", key))
		writeProblem(w, http.StatusTooManyRequests, KindRateLimited, "rate limit exceeded")
	})
}

// ClientIP returns the first X-Forwarded-For hop, else X-Real-IP, else the
// host of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
