package operationsurface

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agentharness/harness/internal/checkpoint"
	"github.com/agentharness/harness/internal/eventbus"
	"github.com/agentharness/harness/internal/gate"
	"github.com/agentharness/harness/internal/ptysup"
	"github.com/agentharness/harness/internal/scanner"
	"github.com/agentharness/harness/internal/store"
	"github.com/agentharness/harness/internal/waiter"
)

func newTestServer(t *testing.T) (*Server, Deps) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	bus := eventbus.New()
	sup := ptysup.New(ptysup.Config{MaxSlots: 2, Executable: "/bin/sh", ExtraArgs: []string{"-c"}}, st, bus, nil)

	deps := Deps{
		Store:       st,
		Supervisor:  sup,
		Checkpoints: checkpoint.New(st, sup),
		Gate:        gate.New(st),
		Scanner:     scanner.New(st),
		Waiter:      waiter.New(st, bus),
		Bus:         bus,
	}
	srv := New(deps, Options{Host: "127.0.0.1", Port: 0})
	return srv, deps
}

func performRequest(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestStartSessionThenListAndGetOutput(t *testing.T) {
	srv, _ := newTestServer(t)
	root := t.TempDir()

	startRec := performRequest(t, srv, "POST", "/sessions", `{"workingDir":"`+root+`","command":"echo hello-world"}`)
	if startRec.Code != http.StatusOK {
		t.Fatalf("StartSession status = %d body=%s", startRec.Code, startRec.Body.String())
	}
	startBody := decodeBody(t, startRec)
	session, ok := startBody["session"].(map[string]any)
	if !ok {
		t.Fatalf("expected session object, got %+v", startBody)
	}
	id, _ := session["id"].(string)
	if id == "" {
		t.Fatalf("expected non-empty session id")
	}

	listRec := performRequest(t, srv, "GET", "/sessions", "")
	if listRec.Code != http.StatusOK {
		t.Fatalf("ListSessions status = %d", listRec.Code)
	}

	var output map[string]any
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		outRec := performRequest(t, srv, "GET", "/sessions/"+id+"/output", "")
		output = decodeBody(t, outRec)
		if text, _ := output["output"].(string); strings.Contains(text, "hello-world") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected output to contain hello-world, got %+v", output)
}

func TestStartSessionRejectedBySlotsExhausted(t *testing.T) {
	srv, _ := newTestServer(t)
	root := t.TempDir()

	first := performRequest(t, srv, "POST", "/sessions", `{"workingDir":"`+root+`","command":"sleep 2"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("first StartSession status = %d body=%s", first.Code, first.Body.String())
	}
	second := performRequest(t, srv, "POST", "/sessions", `{"workingDir":"`+root+`","command":"sleep 2"}`)
	if second.Code != http.StatusOK {
		t.Fatalf("second StartSession status = %d body=%s", second.Code, second.Body.String())
	}
	third := performRequest(t, srv, "POST", "/sessions", `{"workingDir":"`+root+`","command":"sleep 2"}`)
	if third.Code == http.StatusOK {
		t.Fatalf("expected third StartSession to be rejected for lack of free slots")
	}
}

func TestStartSessionRejectedByExecutionLimitGate(t *testing.T) {
	srv, st := newTestServer(t)
	root := t.TempDir()

	if err := st.Store.CreateSession(&store.Session{
		ID: "existing", Slot: 1, Status: store.SessionRunning, WorkingDir: root,
		CurrentCommand: "execute 01-01-PLAN.md", StartedAt: time.Now().UTC(), LastPolledAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed running execute session: %v", err)
	}

	rec := performRequest(t, srv, "POST", "/sessions", `{"workingDir":"`+root+`","command":"execute 01-02-PLAN.md"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for EXECUTION_LIMIT, got %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["code"] != "EXECUTION_LIMIT" {
		t.Fatalf("expected EXECUTION_LIMIT code, got %+v", body)
	}
}

func TestWaitForStateChangeReturnsNoRunningSessions(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := performRequest(t, srv, "POST", "/wait", `{"timeoutMs":1000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("WaitForStateChange status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["change"] != nil {
		t.Fatalf("expected nil change, got %+v", body)
	}
}

func TestSyncProjectStateReturnsDerivedLimits(t *testing.T) {
	srv, _ := newTestServer(t)
	root := t.TempDir()

	rec := performRequest(t, srv, "POST", "/project/sync", `{"projectRoot":"`+root+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("SyncProjectState status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["maxPlanPhase"].(float64) != 2 {
		t.Fatalf("expected default maxPlanPhase 2 for an empty project root, got %+v", body)
	}
}
