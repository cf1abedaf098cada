package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultKeyFunc(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "remote addr", remoteAddr: "192.0.2.7:51000", want: "192.0.2.7"},
		{name: "remote addr without port", remoteAddr: "192.0.2.7", want: "192.0.2.7"},
		{name: "ipv6 remote addr", remoteAddr: "[2001:db8::1]:443", want: "2001:db8::1"},
		{
			name:       "first forwarded hop",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": " 203.0.113.50 , 70.41.3.18"},
			want:       "203.0.113.50",
		},
		{
			name:       "single forwarded hop",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9"},
			want:       "203.0.113.9",
		},
		{
			name:       "real ip",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "198.51.100.4"},
			want:       "198.51.100.4",
		},
		{
			name:       "forwarded wins over real ip",
			remoteAddr: "10.0.0.1:80",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.50",
				"X-Real-IP":       "198.51.100.4",
			},
			want: "203.0.113.50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, defaultKeyFunc(req))
		})
	}
}

func TestRateLimiterTimeline(t *testing.T) {
	type step struct {
		at        time.Duration
		remaining int
		reset     time.Duration
		denied    bool
	}

	tests := []struct {
		name  string
		cfg   RateLimitConfig
		steps []step
	}{
		{
			name: "burst then refill",
			cfg:  RateLimitConfig{Max: 2, Window: time.Second},
			steps: []step{
				{at: 0, remaining: 1, reset: 500 * time.Millisecond},
				{at: 0, remaining: 0, reset: time.Second},
				{at: 0, remaining: 0, reset: time.Second, denied: true},
				{at: 500 * time.Millisecond, remaining: 0, reset: time.Second},
				{at: 2 * time.Second, remaining: 1, reset: 500 * time.Millisecond},
			},
		},
		{
			name: "defaults to one per minute",
			cfg:  RateLimitConfig{},
			steps: []step{
				{at: 0, remaining: 0, reset: time.Minute},
				{at: 30 * time.Second, remaining: 0, reset: 30 * time.Second, denied: true},
				{at: 61 * time.Second, remaining: 0, reset: time.Minute},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := newRateLimiter(tt.cfg)
			start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

			for i, s := range tt.steps {
				now := start.Add(s.at)
				remaining, resetAt, retryAfter := rl.allow("user-1", now)

				assert.Equal(t, s.remaining, remaining, "step %d remaining", i)
				assert.WithinDuration(t, now.Add(s.reset), resetAt, time.Millisecond, "step %d reset", i)
				if s.denied {
					assert.Positive(t, retryAfter, "step %d should be denied", i)
				} else {
					assert.Zero(t, retryAfter, "step %d should pass", i)
				}
			}
		})
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 3, Window: time.Minute})
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	rl.allow("idle", start)
	rl.allow("active", start)
	rl.allow("active", start.Add(50*time.Second))

	rl.cleanup(start.Add(59 * time.Second))
	assert.Len(t, rl.buckets, 2)

	rl.cleanup(start.Add(time.Minute))
	assert.NotContains(t, rl.buckets, "idle")
	assert.Contains(t, rl.buckets, "active")

	rl.cleanup(start.Add(2 * time.Minute))
	assert.Empty(t, rl.buckets)
}

func TestRateLimitMiddleware(t *testing.T) {
	var served int
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		served++
		w.WriteHeader(http.StatusNoContent)
	})
	h := RateLimit(RateLimitConfig{
		Max:    2,
		Window: time.Minute,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("X-API-Key")
		},
	})(next)

	call := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i, want := range []string{"1", "0"} {
		rec := call("key-a")
		require.Equal(t, http.StatusNoContent, rec.Code, "request %d", i)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, want, rec.Header().Get("X-RateLimit-Remaining"))
		reset, err := strconv.ParseInt(rec.Header().Get("X-RateLimit-Reset"), 10, 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, reset, time.Now().Unix())
		assert.Empty(t, rec.Header().Get("Retry-After"))
	}

	rec := call("key-a")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, rec.Body.String())
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 30, retry, 1)

	// Buckets are per key.
	assert.Equal(t, http.StatusNoContent, call("key-b").Code)
	assert.Equal(t, 3, served)
}

func TestRateLimitWithCleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := RateLimitWithCleanup(ctx, RateLimitConfig{Max: 1, Window: time.Hour})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	codes := make([]int, 0, 2)
	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
