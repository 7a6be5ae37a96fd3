package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": " 10.0.0.1 , 10.0.0.2"}, "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.3"}, "10.0.0.3"},
		{"forwarded wins", map[string]string{"X-Forwarded-For": "10.0.0.1", "X-Real-IP": "10.0.0.3"}, "10.0.0.1"},
		{"empty forwarded", map[string]string{"X-Forwarded-For": " ", "X-Real-IP": "10.0.0.3"}, "10.0.0.3"},
		{"none", nil, "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIP(r))
			assert.Equal(t, "user_1:"+tc.want, KeyFor("user_1", r))
		})
	}
}

func TestMiddlewareReleasesAfterRequest(t *testing.T) {
	m, _ := newTestMemory(t, Config{Window: time.Minute, Max: 1, Prefix: "m"})
	var held int
	h := Middleware(m, func(*http.Request) string { return "u" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		held = m.Len()
		w.WriteHeader(http.StatusAccepted)
	}))

	// max is one, so sequential requests only pass if each releases its slot
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		require.Equal(t, http.StatusAccepted, rec.Code, "request %d", i)
	}
	assert.Equal(t, 1, held)
	assert.Equal(t, 0, m.Len())
}

func TestMiddlewareDeniesWithRetryAfter(t *testing.T) {
	m, _ := newTestMemory(t, Config{Window: time.Minute, Max: 1, Prefix: "m"})
	// hold the only slot
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	m.Acquire(context.Background(), KeyFor("u", r))

	called := false
	h := Middleware(m, func(*http.Request) string { return "u" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestMiddlewarePassesAnonymous(t *testing.T) {
	m, _ := newTestMemory(t, Config{Window: time.Minute, Max: 1, Prefix: "m"})
	h := Middleware(m, func(*http.Request) string { return "" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, m.Len())
}
