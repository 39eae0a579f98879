// Package operationsurface implements the Operation Surface (§4.J): the
// uniform HTTP request/response boundary the coordinator drives every
// other component through. It is adapted from the teacher webserver's
// route/middleware structure, narrowed to the harness's own operation
// set and response envelope.
package operationsurface

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agentharness/harness/internal/checkpoint"
	"github.com/agentharness/harness/internal/eventbus"
	"github.com/agentharness/harness/internal/gate"
	"github.com/agentharness/harness/internal/logging"
	"github.com/agentharness/harness/internal/protocoldir"
	"github.com/agentharness/harness/internal/ptysup"
	"github.com/agentharness/harness/internal/scanner"
	"github.com/agentharness/harness/internal/store"
	"github.com/agentharness/harness/internal/waiter"
)

// Deps wires every component the operation surface dispatches to.
type Deps struct {
	Store       *store.Store
	Supervisor  *ptysup.Supervisor
	Checkpoints *checkpoint.Registry
	Gate        *gate.Gate
	Scanner     *scanner.Scanner
	Waiter      *waiter.Waiter
	Bus         *eventbus.Bus
}

// Options configures the HTTP listener.
type Options struct {
	Host      string
	Port      int
	AuthToken string
	RateLimit float64
}

// Server hosts the operation surface's HTTP API and WebSocket bridge.
type Server struct {
	deps       Deps
	httpServer *http.Server
	host       string
	port       int
}

// New builds a Server from deps and opts.
func New(deps Deps, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := opts.Port
	if port <= 0 {
		port = 7780
	}

	srv := &Server{deps: deps, host: host, port: port}

	mux := http.NewServeMux()
	srv.setupRoutes(mux)

	handler := corsMiddleware(logMiddleware(rateLimitMiddleware(opts.RateLimit, opts.AuthToken, authMiddleware(opts.AuthToken, mux))))
	srv.httpServer = &http.Server{
		Addr:              srv.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv
}

// Addr returns the bound host:port address.
func (srv *Server) Addr() string {
	return net.JoinHostPort(srv.host, strconv.Itoa(srv.port))
}

// Start begins serving in a background goroutine.
func (srv *Server) Start() error {
	ln, err := net.Listen("tcp", srv.Addr())
	if err != nil {
		return fmt.Errorf("operationsurface: listen: %w", err)
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		srv.port = tcpAddr.Port
		srv.httpServer.Addr = srv.Addr()
	}

	go func() {
		if err := srv.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Named("operationsurface").Error("server stopped with error", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (srv *Server) Shutdown(ctx context.Context) error {
	if srv.httpServer == nil {
		return nil
	}
	return srv.httpServer.Shutdown(ctx)
}

func (srv *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /sessions", srv.handleListSessions)
	mux.HandleFunc("POST /sessions", srv.handleStartSession)
	mux.HandleFunc("POST /sessions/{id}/end", srv.handleEndSession)
	mux.HandleFunc("GET /sessions/{id}/output", srv.handleGetOutput)
	mux.HandleFunc("POST /sessions/{id}/input", srv.handleSendInput)
	mux.HandleFunc("POST /sessions/{id}/resize", srv.handleResize)

	mux.HandleFunc("GET /sessions/{id}/checkpoint", srv.handleGetCheckpoint)
	mux.HandleFunc("POST /sessions/{id}/checkpoint/respond", srv.handleRespondCheckpoint)
	mux.HandleFunc("POST /sessions/{id}/checkpoint/signal", srv.handleSignalCheckpoint)
	mux.HandleFunc("POST /sessions/{id}/worker-report", srv.handleWorkerReport)
	mux.HandleFunc("GET /sessions/{id}/worker-messages/{messageId}/await", srv.handleWorkerAwait)
	mux.HandleFunc("POST /sessions/{id}/worker-messages/{messageId}/respond", srv.handleRespond)
	mux.HandleFunc("GET /pending", srv.handleGetPending)

	mux.HandleFunc("POST /project/sync", srv.handleSyncProjectState)
	mux.HandleFunc("POST /project/execution-state", srv.handleSetExecutionState)
	mux.HandleFunc("POST /project/mark-phase-verified", srv.handleMarkPhaseVerified)

	mux.HandleFunc("POST /wait", srv.handleWaitForStateChange)

	mux.HandleFunc("GET /ws/sessions/{id}", srv.handleSessionWebSocket)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /version", srv.handleVersion)
}

// resolveSessionID resolves a path segment that may be either an opaque
// session id or a slot number, per §4.J's "id|slot" addressing.
func (srv *Server) resolveSessionID(raw string) (string, error) {
	if sess, err := srv.deps.Store.GetSession(raw); err != nil {
		return "", err
	} else if sess != nil {
		return sess.ID, nil
	}

	slot, err := strconv.Atoi(raw)
	if err != nil {
		return "", fmt.Errorf("operationsurface: no session with id or slot %q", raw)
	}
	running, err := srv.deps.Store.ListSessions(store.FilterRunning)
	if err != nil {
		return "", err
	}
	for _, s := range running {
		if s.Slot == slot {
			return s.ID, nil
		}
	}
	return "", fmt.Errorf("operationsurface: no running session in slot %d", slot)
}

// protocolMirror returns the on-disk mirror for a session's project root.
func (srv *Server) protocolMirror(sess *store.Session) *protocoldir.Mirror {
	return protocoldir.New(sess.WorkingDir)
}
