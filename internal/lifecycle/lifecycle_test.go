package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/agentharness/harness/internal/eventbus"
	"github.com/agentharness/harness/internal/gate"
	"github.com/agentharness/harness/internal/store"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

type fakeForgetter struct {
	forgotten chan string
}

func (f *fakeForgetter) Forget(sessionID string) {
	f.forgotten <- sessionID
}

func TestRunAdvancesHighestExecutedPhaseOnExecuteCompletion(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	root := "/projects/demo"
	sess := &store.Session{
		ID:             "sess-1",
		Slot:           1,
		Status:         store.SessionCompleted,
		WorkingDir:     root,
		CurrentCommand: "execute 02-03-PLAN.md",
		StartedAt:      time.Now().UTC(),
		LastPolledAt:   time.Now().UTC(),
	}
	if err := st.CreateSession(sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	bus := eventbus.New()
	g := gate.New(st)
	forgetter := &fakeForgetter{forgotten: make(chan string, 1)}
	coord := New(st, bus, g, forgetter)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = coord.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitUntil(t, time.Second, func() bool { return bus.SubscriberCount() == 1 })

	bus.Publish(eventbus.Event{Type: eventbus.SessionCompleted, SessionID: sess.ID})

	select {
	case id := <-forgetter.forgotten:
		if id != sess.ID {
			t.Fatalf("forgot %q, want %q", id, sess.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Forget was not called")
	}

	waitUntil(t, time.Second, func() bool {
		state, err := st.GetOrchestrationState(root)
		if err != nil {
			t.Fatalf("get orchestration state: %v", err)
		}
		return state.HighestExecutedPhase == 2
	})
}

func TestRunIgnoresNonExecuteCommands(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	root := "/projects/demo"
	sess := &store.Session{
		ID:             "sess-2",
		Slot:           1,
		Status:         store.SessionCompleted,
		WorkingDir:     root,
		CurrentCommand: "plan phase 1",
		StartedAt:      time.Now().UTC(),
		LastPolledAt:   time.Now().UTC(),
	}
	if err := st.CreateSession(sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	bus := eventbus.New()
	g := gate.New(st)
	forgetter := &fakeForgetter{forgotten: make(chan string, 1)}
	coord := New(st, bus, g, forgetter)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = coord.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitUntil(t, time.Second, func() bool { return bus.SubscriberCount() == 1 })

	bus.Publish(eventbus.Event{Type: eventbus.SessionCompleted, SessionID: sess.ID})

	select {
	case <-forgetter.forgotten:
	case <-time.After(time.Second):
		t.Fatal("Forget was not called")
	}

	state, err := st.GetOrchestrationState(root)
	if err != nil {
		t.Fatalf("get orchestration state: %v", err)
	}
	if state.HighestExecutedPhase != 0 {
		t.Fatalf("highestExecutedPhase = %d, want 0 for a non-execute command", state.HighestExecutedPhase)
	}
}
