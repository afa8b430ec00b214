package webhookfront

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := newRateLimiter(10, 3)
	assert.True(t, rl.allow("1.2.3.4"))
	assert.True(t, rl.allow("1.2.3.4"))
	assert.True(t, rl.allow("1.2.3.4"))
}

func TestRateLimiterDeniesOverBurst(t *testing.T) {
	rl := newRateLimiter(10, 2)
	assert.True(t, rl.allow("1.2.3.4"))
	assert.True(t, rl.allow("1.2.3.4"))
	assert.False(t, rl.allow("1.2.3.4"))
}

func TestRateLimiterTracksKeysIndependently(t *testing.T) {
	rl := newRateLimiter(10, 1)
	assert.True(t, rl.allow("1.2.3.4"))
	assert.True(t, rl.allow("5.6.7.8"), "a different key must have its own window")
	assert.False(t, rl.allow("1.2.3.4"))
}

func TestRateLimiterDefaultsWhenZero(t *testing.T) {
	rl := newRateLimiter(0, 0)
	assert.Equal(t, 120, rl.maxCPM)
	assert.Equal(t, 240, rl.burst)
}

func TestRateLimiterMiddlewareRejectsOverLimit(t *testing.T) {
	rl := newRateLimiter(10, 1)
	handler := rl.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "9.9.9.9:5555"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
	assert.Equal(t, "60", rec2.Header().Get("Retry-After"))
}

func TestRateLimiterMiddlewareHandlesMissingPort(t *testing.T) {
	rl := newRateLimiter(10, 5)
	handler := rl.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "no-port-here"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
