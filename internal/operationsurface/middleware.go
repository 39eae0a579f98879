package operationsurface

import (
	"bufio"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentharness/harness/internal/logging"
)

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware gates every non-OPTIONS, non-metrics request behind a
// single shared bearer token: the operation surface has no per-user
// accounts, just one or a handful of coordinator processes that were
// handed the same daemon-wide token out of band.
func authMiddleware(token string, next http.Handler) http.Handler {
	token = strings.TrimSpace(token)
	if token == "" {
		return next
	}
	expected := []byte(token)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		received := bearerToken(r.Header.Get("Authorization"))
		actual := []byte(received)
		if len(actual) == len(expected) && subtle.ConstantTimeCompare(expected, actual) == 1 {
			next.ServeHTTP(w, r)
			return
		}
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	})
}

func bearerToken(value string) string {
	fields := strings.Fields(strings.TrimSpace(value))
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(fields[1])
}

type clientRateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

// rateLimitMiddleware limits requests using a token bucket keyed by
// coordinator identity rather than source IP. harnessd is a single-host
// daemon: every coordinator hitting it shares 127.0.0.1 (or the same
// container network namespace), so an IP-keyed bucket the teacher
// webserver uses to separate distinct public visitors would instead
// collapse every coordinator into one shared budget. When a bearer token
// is configured, the token itself is the identity a bucket is keyed on;
// only unauthenticated deployments (no token configured) fall back to
// the remote address. The WebSocket attach route is excluded: it holds
// one long-lived connection per session rather than issuing bursts of
// discrete requests, so metering it against the same budget as the JSON
// API would let a single attached terminal starve a coordinator's other
// calls.
func rateLimitMiddleware(rps float64, authToken string, next http.Handler) http.Handler {
	if rps <= 0 {
		return next
	}

	burst := rps * 2
	if burst < 10 {
		burst = 10
	}
	authToken = strings.TrimSpace(authToken)

	var (
		limiters    sync.Map
		cleanupOnce sync.Once
	)

	cleanup := func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-5 * time.Minute)
			limiters.Range(func(key, value any) bool {
				limiter, ok := value.(*clientRateLimiter)
				if !ok || limiter == nil {
					limiters.Delete(key)
					return true
				}
				limiter.mu.Lock()
				stale := limiter.lastSeen.Before(cutoff)
				limiter.mu.Unlock()
				if stale {
					limiters.Delete(key)
				}
				return true
			})
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/ws/") {
			next.ServeHTTP(w, r)
			return
		}

		cleanupOnce.Do(func() { go cleanup() })

		key := clientIdentity(r, authToken)
		now := time.Now()

		actual, _ := limiters.LoadOrStore(key, &clientRateLimiter{tokens: burst, lastRefill: now, lastSeen: now})
		limiter := actual.(*clientRateLimiter)

		limiter.mu.Lock()
		elapsed := now.Sub(limiter.lastRefill).Seconds()
		if elapsed > 0 {
			limiter.tokens += elapsed * rps
			if limiter.tokens > burst {
				limiter.tokens = burst
			}
		}
		limiter.lastRefill = now
		limiter.lastSeen = now

		allowed := limiter.tokens >= 1
		if allowed {
			limiter.tokens--
		}
		limiter.mu.Unlock()

		if !allowed {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIdentity returns the bucket key for a request: the bearer token
// when auth is configured (the only thing actually distinguishing one
// coordinator from another on a single host), otherwise the remote
// address.
func clientIdentity(r *http.Request, authToken string) string {
	if authToken != "" {
		if tok := bearerToken(r.Header.Get("Authorization")); tok != "" {
			return "token:" + tok
		}
	}
	return "addr:" + remoteIPFromAddr(r.RemoteAddr)
}

func remoteIPFromAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(remoteAddr))
	if err == nil && host != "" {
		return host
	}
	raw := strings.TrimSpace(remoteAddr)
	if raw == "" {
		return "unknown"
	}
	return raw
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		logging.Named("operationsurface").Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.status),
			zap.Duration("duration", time.Since(started)))
	})
}
