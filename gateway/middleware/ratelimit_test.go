package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	handler := NewRateLimiter(RateLimit{RatePerSecond: 1, Burst: 1}, nil).Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/state", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
}

func TestRateLimiterAppliesRouteTokens(t *testing.T) {
	handler := NewRateLimiter(RateLimit{
		RatePerSecond: 5,
		Burst:         5,
		Tokens:        map[string]int{"POST /v1/buy": 3},
	}, nil).Middleware(okHandler())

	buy := httptest.NewRequest(http.MethodPost, "/v1/buy", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, buy)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first buy to succeed, got %d", res.Code)
	}
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, buy)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second buy to exhaust burst, got %d", res.Code)
	}

	state := httptest.NewRequest(http.MethodGet, "/v1/state", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, state)
	if res.Code != http.StatusOK {
		t.Fatalf("expected default-cost request to succeed, got %d", res.Code)
	}
}

func TestRateLimiterPrefersAPIKeyOverIP(t *testing.T) {
	handler := NewRateLimiter(RateLimit{RatePerSecond: 1, Burst: 1}, nil).Middleware(okHandler())
	for _, key := range []string{"tenant-A", "tenant-B"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/state", nil)
		req.Header.Set("X-API-Key", key)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected %s to succeed, got %d", key, res.Code)
		}
	}
}
