package recovery

import (
	"testing"
	"time"

	"github.com/agentharness/harness/internal/eventbus"
	"github.com/agentharness/harness/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seedSession(t *testing.T, st *store.Store, id string, slot int, status store.SessionStatus, pid *int) {
	t.Helper()
	if err := st.CreateSession(&store.Session{
		ID: id, Slot: slot, Status: status, WorkingDir: "/repo",
		StartedAt: time.Now().UTC(), LastPolledAt: time.Now().UTC(), PID: pid,
	}); err != nil {
		t.Fatalf("seed session %s: %v", id, err)
	}
}

func TestRunMarksRunningAndWaitingCheckpointAsFailed(t *testing.T) {
	st := newTestStore(t)
	seedSession(t, st, "s1", 1, store.SessionRunning, nil)
	seedSession(t, st, "s2", 2, store.SessionWaitingCheckpoint, nil)
	seedSession(t, st, "s3", 3, store.SessionCompleted, nil)

	bus := eventbus.New()
	sub := bus.Subscribe(nil, []eventbus.Type{eventbus.RecoveryComplete}, 1)
	defer sub.Close()

	r := New(st, bus)
	affected, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(affected) != 2 {
		t.Fatalf("expected 2 sessions affected, got %d (%v)", len(affected), affected)
	}

	for _, id := range []string{"s1", "s2"} {
		sess, err := st.GetSession(id)
		if err != nil {
			t.Fatalf("GetSession %s: %v", id, err)
		}
		if sess.Status != store.SessionFailed {
			t.Fatalf("expected %s marked failed, got %s", id, sess.Status)
		}
		if sess.EndedAt == nil {
			t.Fatalf("expected %s to have endedAt set", id)
		}
	}

	sess3, err := st.GetSession("s3")
	if err != nil {
		t.Fatalf("GetSession s3: %v", err)
	}
	if sess3.Status != store.SessionCompleted {
		t.Fatalf("expected already-terminal session left untouched, got %s", sess3.Status)
	}

	select {
	case ev := <-sub.C:
		if ev.RecoveryCount != 2 {
			t.Fatalf("expected recoveryCount 2, got %d", ev.RecoveryCount)
		}
	default:
		t.Fatalf("expected recovery:complete event to be published")
	}
}

func TestRunWithNoStaleSessionsPublishesZeroCount(t *testing.T) {
	st := newTestStore(t)
	seedSession(t, st, "s1", 1, store.SessionCompleted, nil)

	bus := eventbus.New()
	sub := bus.Subscribe(nil, []eventbus.Type{eventbus.RecoveryComplete}, 1)
	defer sub.Close()

	r := New(st, bus)
	affected, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(affected) != 0 {
		t.Fatalf("expected no sessions affected, got %d", len(affected))
	}

	select {
	case ev := <-sub.C:
		if ev.RecoveryCount != 0 {
			t.Fatalf("expected recoveryCount 0, got %d", ev.RecoveryCount)
		}
	default:
		t.Fatalf("expected recovery:complete event even with zero count")
	}
}

func TestRunSkipsKillForUnknownPID(t *testing.T) {
	st := newTestStore(t)
	// A pid that is very unlikely to be alive; isProcessAlive should
	// report false and Run must still mark the session failed without
	// attempting to signal it.
	deadPID := 999999
	seedSession(t, st, "s1", 1, store.SessionRunning, &deadPID)

	r := New(st, eventbus.New())
	affected, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(affected) != 1 {
		t.Fatalf("expected 1 session affected, got %d", len(affected))
	}
}
