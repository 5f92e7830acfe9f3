package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/heartbeat/pkg/observability"
)

func TestRateLimiter_Allow(t *testing.T) {
	config := &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         2,
	}
	limiter := NewRateLimiter(config)
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	allowedCount := 0
	for i := 0; i < config.RequestsPerWindow+config.BurstSize+5; i++ {
		ok, err := limiter.Allow(context.Background(), "ip:10.0.0.1")
		require.NoError(t, err)
		if ok {
			allowedCount++
		}
	}
	assert.Equal(t, config.RequestsPerWindow+config.BurstSize, allowedCount)

	now = now.Add(time.Second)
	ok, _ := limiter.Allow(context.Background(), "ip:10.0.0.1")
	assert.True(t, ok, "tokens should refill after a window")

	ok, _ = limiter.Allow(context.Background(), "ip:10.0.0.2")
	assert.True(t, ok, "other clients have their own bucket")
}

func TestRateLimiter_Remaining(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Second, BurstSize: 2})

	ctx := context.Background()

	remaining, err := limiter.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 12, remaining)

	limiter.Allow(ctx, "k")
	remaining, err = limiter.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 11, remaining)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 10, WindowDuration: 100 * time.Millisecond})
	now := time.Now()
	limiter.now = func() time.Time { return now }

	for _, key := range []string{"a", "b", "c"} {
		limiter.Allow(context.Background(), key)
	}
	assert.Len(t, limiter.buckets, 3)

	now = now.Add(300 * time.Millisecond)
	limiter.Cleanup()
	assert.Empty(t, limiter.buckets)
}

type failingLimiter struct{}

func (failingLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return true, errors.New("redis down")
}

func (failingLimiter) Remaining(ctx context.Context, key string) (int, error) {
	return 0, errors.New("redis down")
}

func (failingLimiter) Config() *RateLimitConfig { return DefaultRateLimitConfig() }

type remainingFailsLimiter struct {
	*RateLimiter
}

func (remainingFailsLimiter) Remaining(ctx context.Context, key string) (int, error) {
	return 0, errors.New("redis down")
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("limits per client", func(t *testing.T) {
		metrics := observability.NewMetrics(prometheus.NewRegistry())
		limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Hour})
		handler := RateLimitMiddleware(limiter, metrics, nil)(ok)

		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			req.RemoteAddr = "192.0.2.10:5555"
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			codes = append(codes, rec.Code)
			if rec.Code == http.StatusTooManyRequests {
				assert.Equal(t, "3600", rec.Header().Get("Retry-After"))
				assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
			}
		}
		assert.Equal(t, []int{200, 200, 429}, codes)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitedTotal))

		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		req.RemoteAddr = "192.0.2.11:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("reports remaining budget", func(t *testing.T) {
		limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Hour})
		handler := RateLimitMiddleware(limiter, nil, nil)(ok)

		remaining := make([]string, 0, 3)
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			req.RemoteAddr = "192.0.2.20:5555"
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
			assert.Empty(t, rec.Header().Get("X-RateLimit-Reset"), "token buckets have no fixed window")
			remaining = append(remaining, rec.Header().Get("X-RateLimit-Remaining"))
		}
		assert.Equal(t, []string{"2", "1", "0"}, remaining)
	})

	t.Run("remaining lookup failure omits header", func(t *testing.T) {
		limiter := remainingFailsLimiter{NewRateLimiter(nil)}
		handler := RateLimitMiddleware(limiter, nil, nil)(ok)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/p", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("X-RateLimit-Limit"))
		_, present := rec.Header()["X-Ratelimit-Remaining"]
		assert.False(t, present)
	})

	t.Run("fails open", func(t *testing.T) {
		handler := RateLimitMiddleware(failingLimiter{}, nil, nil)(ok)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/p", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
