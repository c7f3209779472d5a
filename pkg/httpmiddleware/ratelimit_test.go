package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(t *testing.T, h http.Handler, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	mutate(req)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func fromAddr(addr string) func(*http.Request) {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for i := range 2 {
		w := hit(t, h, fromAddr("10.0.0.1:9999"))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := hit(t, h, fromAddr("10.0.0.1:1"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, w.Body.String())

	assert.Equal(t, http.StatusOK, hit(t, h, fromAddr("10.0.0.2:1")).Code, "other clients are independent")
}

func TestRateLimit_SlidingWindow(t *testing.T) {
	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	now := base
	l := newLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	l.now = func() time.Time { return now }

	for range 4 {
		_, _, ok := l.take("k")
		require.True(t, ok)
	}
	_, _, ok := l.take("k")
	require.False(t, ok)

	// Halfway into the next window half of the previous hits still count.
	now = base.Add(90 * time.Second)
	remaining, _, ok := l.take("k")
	require.True(t, ok)
	assert.Equal(t, 1, remaining)
	_, _, ok = l.take("k")
	require.True(t, ok)
	_, _, ok = l.take("k")
	assert.False(t, ok)

	// Two idle windows forget everything.
	now = base.Add(5 * time.Minute)
	remaining, _, ok = l.take("k")
	require.True(t, ok)
	assert.Equal(t, 3, remaining)

	now = base.Add(10 * time.Minute)
	l.evict()
	assert.Empty(t, l.clients)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Max:     1,
		Window:  time.Minute,
		KeyFunc: func(r *http.Request) string { return r.Header.Get("X-API-Key") },
	})(okHandler())
	withKey := func(k string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("X-API-Key", k) }
	}

	assert.Equal(t, http.StatusOK, hit(t, h, withKey("key-a")).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(t, h, withKey("key-a")).Code)
	assert.Equal(t, http.StatusOK, hit(t, h, withKey("key-b")).Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		addr   string
		want   string
	}{
		{name: "forwarded list", header: map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, addr: "192.168.1.1:1", want: "203.0.113.50"},
		{name: "real ip", header: map[string]string{"X-Real-IP": "198.51.100.7"}, addr: "192.168.1.1:1", want: "198.51.100.7"},
		{name: "remote addr", addr: "192.168.1.1:4444", want: "192.168.1.1"},
		{name: "remote addr without port", addr: "pipe", want: "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.addr
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
