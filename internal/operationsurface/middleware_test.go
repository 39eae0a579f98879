package operationsurface

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIdentityPrefersBearerTokenOverAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/sessions", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("Authorization", "Bearer secret-token")

	if got := clientIdentity(req, "secret-token"); got != "token:secret-token" {
		t.Fatalf("clientIdentity = %q, want token-keyed identity", got)
	}
}

func TestClientIdentityFallsBackToAddrWithoutAuth(t *testing.T) {
	req := httptest.NewRequest("GET", "/sessions", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	if got := clientIdentity(req, ""); got != "addr:10.0.0.1" {
		t.Fatalf("clientIdentity = %q, want addr-keyed identity", got)
	}
}

func TestRateLimitMiddlewareSharesBudgetAcrossAddrsForSameToken(t *testing.T) {
	var calls int
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ })
	// rps=1 floors burst at 10 tokens; drain the shared bucket from one
	// address, then prove a different address presenting the same bearer
	// token draws from the same (now empty) bucket rather than a fresh
	// one, which an IP-keyed limiter would hand it.
	handler := rateLimitMiddleware(1, "shared-token", next)

	drain := func(addr string, n int) int {
		var ok int
		for i := 0; i < n; i++ {
			req := httptest.NewRequest("GET", "/sessions", nil)
			req.RemoteAddr = addr
			req.Header.Set("Authorization", "Bearer shared-token")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code == http.StatusOK {
				ok++
			}
		}
		return ok
	}

	if got := drain("10.0.0.1:1", 10); got != 10 {
		t.Fatalf("expected all 10 burst requests from first addr to succeed, got %d", got)
	}
	calls = 0
	if got := drain("10.0.0.2:2", 1); got != 0 {
		t.Fatalf("expected second addr sharing the token's bucket to be throttled, got %d successes", got)
	}
	if calls != 0 {
		t.Fatalf("expected the throttled request to never reach next, next called %d times", calls)
	}
}

func TestRateLimitMiddlewareExemptsWebSocketRoute(t *testing.T) {
	var calls int
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ })
	handler := rateLimitMiddleware(1, "", next)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/ws/sessions/abc", nil)
		req.RemoteAddr = "10.0.0.1:1"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("ws request %d: status = %d, want 200 (ws route should bypass the limiter)", i, rec.Code)
		}
	}
	if calls != 5 {
		t.Fatalf("expected all 5 ws requests to pass through, got %d", calls)
	}
}
