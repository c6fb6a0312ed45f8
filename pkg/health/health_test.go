package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func get(t *testing.T, h http.HandlerFunc) (int, string) {
	t.Helper()
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	return w.Code, w.Body.String()
}

func runN(ctx context.Context, c *check, n int) {
	for range n {
		c.run(ctx)
	}
}

func TestLiveEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		checks []Check
		runs   int
		code   int
		body   string
	}{
		{
			name: "no checks",
			code: http.StatusOK,
			body: `{"status":"ok"}`,
		},
		{
			name:   "passing",
			checks: []Check{{Name: "a", Func: passing}, {Name: "b", Func: passing}},
			runs:   3,
			code:   http.StatusOK,
			body:   `{"status":"ok"}`,
		},
		{
			name:   "below threshold",
			checks: []Check{{Name: "flaky", Func: failing("temporary")}},
			runs:   2,
			code:   http.StatusOK,
			body:   `{"status":"ok"}`,
		},
		{
			name:   "failing",
			checks: []Check{{Name: "db", Func: failing("connection refused")}},
			runs:   3,
			code:   http.StatusServiceUnavailable,
			body:   `{"status":"unhealthy","checks":{"db":"connection refused"}}`,
		},
		{
			name:   "custom threshold",
			checks: []Check{{Name: "db", Func: failing("down"), FailureThreshold: 1}},
			runs:   1,
			code:   http.StatusServiceUnavailable,
			body:   `{"status":"unhealthy","checks":{"db":"down"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(nil)
			for _, c := range tt.checks {
				h.AddLiveness(c)
			}
			for _, c := range h.liveness {
				runN(t.Context(), c, tt.runs)
			}

			code, body := get(t, h.LiveEndpoint)
			assert.Equal(t, tt.code, code)
			assert.JSONEq(t, tt.body, body)
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name  string
		ready bool
		db    CheckFunc
		cache CheckFunc
		code  int
		body  string
	}{
		{
			name:  "ready",
			ready: true, db: passing, cache: passing,
			code: http.StatusOK,
			body: `{"status":"ok"}`,
		},
		{
			name:  "not marked ready",
			ready: false, db: passing, cache: passing,
			code: http.StatusServiceUnavailable,
			body: `{"status":"unhealthy","checks":{"_readiness":"service is not ready"}}`,
		},
		{
			name:  "database down",
			ready: true, db: failing("refused"), cache: passing,
			code: http.StatusServiceUnavailable,
			body: `{"status":"unhealthy","checks":{"postgres":"refused"}}`,
		},
		{
			name:  "cache down is degraded",
			ready: true, db: passing, cache: failing("no redis"),
			code: http.StatusOK,
			body: `{"status":"degraded","checks":{"redis":"no redis"}}`,
		},
		{
			name:  "both down",
			ready: true, db: failing("refused"), cache: failing("no redis"),
			code: http.StatusServiceUnavailable,
			body: `{"status":"unhealthy","checks":{"postgres":"refused","redis":"no redis"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(nil)
			h.AddReadiness(Check{Name: "redis", Func: tt.cache, Optional: true})
			h.AddReadiness(Check{Name: "postgres", Func: tt.db})
			h.SetReady(tt.ready)
			for _, c := range h.readiness {
				runN(t.Context(), c, 3)
			}

			code, body := get(t, h.ReadyEndpoint)
			assert.Equal(t, tt.code, code)
			assert.JSONEq(t, tt.body, body)
			assert.Equal(t, tt.code == http.StatusOK, h.IsReady())
		})
	}
}

func TestCheckTransitionsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	down := true
	h := New(zap.New(core))
	h.AddLiveness(Check{Name: "flaky", Func: func(context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	}})
	c := h.liveness[0]

	assert.Nil(t, c.err())
	runN(t.Context(), c, 4)
	assert.False(t, c.healthy.Load())
	assert.EqualError(t, c.err(), "down")
	assert.Equal(t, 1, logs.FilterMessage("Check became unhealthy").Len())

	down = false
	c.run(t.Context())
	assert.True(t, c.healthy.Load())
	assert.Equal(t, 1, logs.FilterMessage("Check recovered").Len())
}

func TestCheckTimeout(t *testing.T) {
	h := New(nil)
	h.AddReadiness(Check{
		Name:             "slow",
		Timeout:          10 * time.Millisecond,
		FailureThreshold: 1,
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	h.SetReady(true)
	h.readiness[0].run(t.Context())

	assert.ErrorIs(t, h.readiness[0].err(), context.DeadlineExceeded)
	assert.False(t, h.IsReady())
}

func TestRegister(t *testing.T) {
	h := New(nil)
	h.SetReady(true)
	mux := http.NewServeMux()
	h.Register(mux)

	for _, path := range []string{"/livez", "/readyz"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/livez", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestStartAndStop(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	h := New(nil)
	h.AddLiveness(Check{Name: "count", Func: func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil
	}})

	h.Start(t.Context(), 5*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, time.Second, time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	h := New(nil)
	h.AddLiveness(Check{Name: "failing", Func: failing("err")})
	h.AddReadiness(Check{Name: "passing", Func: passing})
	h.SetReady(true)
	h.Start(t.Context(), time.Millisecond)
	defer h.Stop()

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			for range 100 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		})
	}
	wg.Wait()
}

func TestPingCheck(t *testing.T) {
	ok := PingCheck(pingerFunc(func(context.Context) error { return nil }))
	assert.NoError(t, ok(t.Context()))

	bad := PingCheck(pingerFunc(func(context.Context) error { return errors.New("refused") }))
	assert.EqualError(t, bad(t.Context()), "ping: refused")
}

func TestRuntimeChecks(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(t.Context()))
	assert.ErrorContains(t, GoroutineCountCheck(0)(t.Context()), "exceeds threshold")
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(t.Context()))
}
