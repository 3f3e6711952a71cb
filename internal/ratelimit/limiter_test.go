package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowSpendsBurstThenRefills(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Unix(1_700_000_000, 0)

	require.True(t, l.Allow("ip:a", now))
	require.True(t, l.Allow("ip:a", now))
	require.False(t, l.Allow("ip:a", now))
	require.True(t, l.Allow("ip:b", now), "buckets are per key")
	require.True(t, l.Allow("ip:a", now.Add(time.Second)))
}

func TestNilLimiterAllows(t *testing.T) {
	l := New(0, 0, 0)
	require.Nil(t, l)
	require.True(t, l.Allow("ip:a", time.Now()))

	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestIdleEntriesEvicted(t *testing.T) {
	l := New(1, 1, time.Minute)
	start := time.Unix(1_700_000_000, 0)
	l.Allow("ip:idle", start)

	later := start.Add(2 * time.Minute)
	for i := 0; i < sweepEvery; i++ {
		l.Allow("ip:busy", later)
	}
	require.NotContains(t, l.byKey, "ip:idle")
	require.Contains(t, l.byKey, "ip:busy")
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	l := New(1, 1, time.Minute)
	fixed := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return fixed }

	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/mint", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	require.Equal(t, http.StatusAccepted, send().Code)
	rec := send()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.2:443"
	require.Equal(t, "ip:198.51.100.2", ClientKey(req))

	req.RemoteAddr = "bare"
	require.Equal(t, "ip:bare", ClientKey(req))

	req.RemoteAddr = ""
	require.Equal(t, "ip:unknown", ClientKey(req))
}
