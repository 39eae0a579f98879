package waiter

import (
	"testing"
	"time"

	"github.com/agentharness/harness/internal/eventbus"
	"github.com/agentharness/harness/internal/store"
)

func newTestWaiter(t *testing.T) (*Waiter, *store.Store, *eventbus.Bus) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	bus := eventbus.New()
	return New(st, bus), st, bus
}

func seedSession(t *testing.T, st *store.Store, id string, status store.SessionStatus) {
	t.Helper()
	if err := st.CreateSession(&store.Session{
		ID: id, Slot: 1, Status: status, WorkingDir: "/repo",
		StartedAt: time.Now().UTC(), LastPolledAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed session %s: %v", id, err)
	}
}

func TestWaitForStateChangeEmptyWatchSetReturnsImmediately(t *testing.T) {
	w, _, _ := newTestWaiter(t)
	result, err := w.WaitForStateChange(2*time.Second, nil)
	if err != nil {
		t.Fatalf("WaitForStateChange: %v", err)
	}
	if result.Change != nil || result.Reason != "no running sessions" {
		t.Fatalf("expected immediate no-running-sessions result, got %+v", result)
	}
}

func TestWaitForStateChangeSynthesizesAlreadyTerminal(t *testing.T) {
	w, st, _ := newTestWaiter(t)
	seedSession(t, st, "s1", store.SessionRunning)
	now := time.Now().UTC()
	if err := st.SetStatus("s1", store.SessionCompleted, &now); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	result, err := w.WaitForStateChange(2*time.Second, []string{"s1"})
	if err != nil {
		t.Fatalf("WaitForStateChange: %v", err)
	}
	if result.Change == nil || result.Change.Kind != "completed" {
		t.Fatalf("expected synthesized completed change, got %+v", result)
	}
}

func TestWaitForStateChangeSynthesizesAlreadyWaiting(t *testing.T) {
	w, st, _ := newTestWaiter(t)
	seedSession(t, st, "s1", store.SessionWaitingCheckpoint)
	if err := st.SetLastWaitType("s1", "menu"); err != nil {
		t.Fatalf("SetLastWaitType: %v", err)
	}

	result, err := w.WaitForStateChange(2*time.Second, []string{"s1"})
	if err != nil {
		t.Fatalf("WaitForStateChange: %v", err)
	}
	if result.Change == nil || result.Change.Kind != "waiting" || result.Change.WaitType != "menu" {
		t.Fatalf("expected synthesized waiting change, got %+v", result)
	}
}

func TestWaitForStateChangeResolvesOnPublishedEvent(t *testing.T) {
	w, st, bus := newTestWaiter(t)
	seedSession(t, st, "s1", store.SessionRunning)

	done := make(chan *Result, 1)
	go func() {
		result, err := w.WaitForStateChange(3*time.Second, []string{"s1"})
		if err != nil {
			t.Errorf("WaitForStateChange: %v", err)
			return
		}
		done <- result
	}()

	time.Sleep(50 * time.Millisecond)
	bus.Publish(eventbus.Event{Type: eventbus.SessionFailed, SessionID: "s1", Reason: "exit code 1"})

	select {
	case result := <-done:
		if result.Change == nil || result.Change.Kind != "failed" || result.Change.Reason != "exit code 1" {
			t.Fatalf("expected failed change with reason, got %+v", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for WaitForStateChange to resolve")
	}
}

func TestWaitForStateChangeTimesOutWhenNothingHappens(t *testing.T) {
	w, st, _ := newTestWaiter(t)
	seedSession(t, st, "s1", store.SessionRunning)

	result, err := w.WaitForStateChange(100*time.Millisecond, []string{"s1"})
	if err != nil {
		t.Fatalf("WaitForStateChange: %v", err)
	}
	if !result.Timeout || result.Change != nil {
		t.Fatalf("expected timeout result, got %+v", result)
	}
}

func TestWaitForStateChangeDefaultsToAllRunningSessions(t *testing.T) {
	w, st, _ := newTestWaiter(t)
	seedSession(t, st, "s1", store.SessionCompleted)
	seedSession(t, st, "s2", store.SessionRunning)
	if err := st.SetLastWaitType("s2", "permission"); err != nil {
		t.Fatalf("SetLastWaitType: %v", err)
	}

	result, err := w.WaitForStateChange(2*time.Second, nil)
	if err != nil {
		t.Fatalf("WaitForStateChange: %v", err)
	}
	if result.Change == nil || result.Change.SessionID != "s2" || result.Change.Kind != "waiting" {
		t.Fatalf("expected s2 waiting change via default watch set, got %+v", result)
	}
}
