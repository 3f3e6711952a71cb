package hmacauth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func newVerifier() *Verifier {
	return &Verifier{
		Secret:  "secret",
		MaxSkew: time.Minute,
		Now:     func() time.Time { return fixedNow },
	}
}

func signedRequest(path, body string, at time.Time) *http.Request {
	ts := strconv.FormatInt(at.Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, Sign("secret", http.MethodPost, path, ts, []byte(body)))
	return req
}

func TestMiddleware_AllowsValidSignature(t *testing.T) {
	body := `{"intent":"mint"}`
	req := signedRequest("/api/v1/mint", body, fixedNow)
	rec := httptest.NewRecorder()

	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		seen = string(raw)
		w.WriteHeader(http.StatusOK)
	})
	newVerifier().Middleware(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen != body {
		t.Fatalf("handler saw body %q, want %q", seen, body)
	}
}

func TestMiddleware_AcceptsUpperCaseHex(t *testing.T) {
	req := signedRequest("/api/v1/mint", `{"intent":"mint"}`, fixedNow)
	req.Header.Set(HeaderSignature, strings.ToUpper(req.Header.Get(HeaderSignature)))
	rec := httptest.NewRecorder()

	newVerifier().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddleware_Rejects(t *testing.T) {
	cases := map[string]func() *http.Request{
		"bad signature": func() *http.Request {
			req := signedRequest("/api/v1/mint", "", fixedNow)
			req.Header.Set(HeaderSignature, "deadbeef")
			return req
		},
		"missing signature": func() *http.Request {
			req := signedRequest("/api/v1/mint", "", fixedNow)
			req.Header.Del(HeaderSignature)
			return req
		},
		"missing timestamp": func() *http.Request {
			req := signedRequest("/api/v1/mint", "", fixedNow)
			req.Header.Del(HeaderTimestamp)
			return req
		},
		"stale": func() *http.Request {
			return signedRequest("/api/v1/mint", "", fixedNow.Add(-2*time.Minute))
		},
		"other route": func() *http.Request {
			req := signedRequest("/api/v1/wallet/connect", "", fixedNow)
			req.URL.Path = "/api/v1/mint"
			return req
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newVerifier().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			})).ServeHTTP(rec, build())

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestMiddleware_NoSecretPassesThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mint", nil)
	rec := httptest.NewRecorder()

	v := &Verifier{}
	v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}
