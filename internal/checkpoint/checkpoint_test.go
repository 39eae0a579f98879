package checkpoint

import (
	"testing"
	"time"

	"github.com/agentharness/harness/internal/store"
)

type fakeSender struct {
	lastID    string
	lastInput string
}

func (f *fakeSender) SendInput(id, input string) (bool, error) {
	f.lastID, f.lastInput = id, input
	return true, nil
}

func newTestRegistry(t *testing.T) (*Registry, *store.Store, *fakeSender) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	sender := &fakeSender{}
	return New(st, sender), st, sender
}

func seedSession(t *testing.T, st *store.Store, id string) {
	t.Helper()
	sess := &store.Session{
		ID: id, Slot: 1, Status: store.SessionRunning,
		WorkingDir: "/tmp", StartedAt: time.Now().UTC(), LastPolledAt: time.Now().UTC(),
	}
	if err := st.CreateSession(sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
}

func TestGetCheckpointPrefersExplicitOverPattern(t *testing.T) {
	reg, st, _ := newTestRegistry(t)
	seedSession(t, st, "s1")

	phase := 3
	if _, err := reg.SignalCheckpoint("s1", store.CheckpointCompletion, "execute-phase", &phase, "done", "next", ""); err != nil {
		t.Fatalf("SignalCheckpoint: %v", err)
	}

	tail := []byte("═══ CHECKPOINT: decision ═══\nDecision: pick a db\n═══\n")
	result, err := reg.GetCheckpoint("s1", tail)
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if result.Source != SourceExplicit {
		t.Fatalf("expected explicit source, got %v", result.Source)
	}
	if result.Type != store.CheckpointCompletion {
		t.Fatalf("expected completion type, got %v", result.Type)
	}
}

func TestGetCheckpointFallsBackToPatternWhenWaiting(t *testing.T) {
	reg, st, _ := newTestRegistry(t)
	seedSession(t, st, "s1")
	if err := st.SetStatus("s1", store.SessionWaitingCheckpoint, nil); err != nil {
		t.Fatalf("set status: %v", err)
	}

	tail := []byte("some earlier output\n" +
		"═══ CHECKPOINT: human-verify ═══\n" +
		"What was built: a login form\n" +
		"How to verify:\n- open the page\n- click submit\n" +
		"═══\n")
	result, err := reg.GetCheckpoint("s1", tail)
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if !result.HasCheckpoint || result.Source != SourcePattern {
		t.Fatalf("expected pattern-based checkpoint, got %+v", result)
	}
	if result.Type != store.CheckpointHumanVerify {
		t.Fatalf("expected human-verify, got %v", result.Type)
	}
	if result.ResumeSignal != "approved" {
		t.Fatalf("expected default resume signal approved, got %q", result.ResumeSignal)
	}
	if got := result.Fields["whatBuilt"]; got != "a login form" {
		t.Fatalf("expected whatBuilt extracted, got %v", got)
	}
}

func TestGetCheckpointNoneWhenNotWaiting(t *testing.T) {
	reg, st, _ := newTestRegistry(t)
	seedSession(t, st, "s1")

	result, err := reg.GetCheckpoint("s1", []byte("CHECKPOINT: decision\n"))
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if result.HasCheckpoint {
		t.Fatalf("expected no checkpoint for a running (non-waiting) session, got %+v", result)
	}
}

func TestRespondCheckpointWritesToSender(t *testing.T) {
	reg, st, sender := newTestRegistry(t)
	seedSession(t, st, "s1")

	if _, err := reg.RespondCheckpoint("s1", "approved"); err != nil {
		t.Fatalf("RespondCheckpoint: %v", err)
	}
	if sender.lastID != "s1" || sender.lastInput != "approved" {
		t.Fatalf("unexpected sender call: %+v", sender)
	}
}
