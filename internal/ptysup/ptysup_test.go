package ptysup

import (
	"testing"
	"time"

	"github.com/agentharness/harness/internal/eventbus"
	"github.com/agentharness/harness/internal/harnesserr"
	"github.com/agentharness/harness/internal/store"
)

func newTestSupervisor(t *testing.T, cfg Config) (*Supervisor, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	bus := eventbus.New()
	sv := New(cfg, st, bus, nil)
	return sv, st
}

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

func TestSpawnProducesOutputAndTerminates(t *testing.T) {
	sv, _ := newTestSupervisor(t, Config{
		MaxSlots:   2,
		Executable: "/bin/sh",
		ExtraArgs:  []string{"-c"},
	})

	sess, err := sv.Spawn(t.TempDir(), "echo hello-world")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if sess.Slot != 1 {
		t.Fatalf("expected slot 1, got %d", sess.Slot)
	}

	waitUntil(t, 2*time.Second, func() bool {
		chunks, ok := sv.GetOutput(sess.ID)
		if !ok {
			return false
		}
		for _, c := range chunks {
			if len(c.Data) > 0 {
				return true
			}
		}
		return false
	})

	waitUntil(t, 2*time.Second, func() bool {
		_, stillLive := sv.GetOutput(sess.ID)
		return !stillLive
	})
}

func TestFreeSlotsReflectsClaimsAndReleases(t *testing.T) {
	sv, _ := newTestSupervisor(t, Config{MaxSlots: 2, Executable: "/bin/sh", ExtraArgs: []string{"-c"}})

	if got := sv.FreeSlots(); got != 2 {
		t.Fatalf("expected 2 free slots initially, got %d", got)
	}

	sess, err := sv.Spawn(t.TempDir(), "sleep 2")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if got := sv.FreeSlots(); got != 1 {
		t.Fatalf("expected 1 free slot after spawn, got %d", got)
	}

	if err := sv.Terminate(sess.ID); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return sv.FreeSlots() == 2 })
}

func TestSpawnFailsWhenSlotsExhausted(t *testing.T) {
	sv, _ := newTestSupervisor(t, Config{
		MaxSlots:   1,
		Executable: "/bin/sh",
		ExtraArgs:  []string{"-c"},
	})

	_, err := sv.Spawn(t.TempDir(), "sleep 2")
	if err != nil {
		t.Fatalf("first Spawn: %v", err)
	}

	_, err = sv.Spawn(t.TempDir(), "echo second")
	if harnesserr.CodeOf(err) != harnesserr.CodeSlotsExhausted {
		t.Fatalf("expected SlotsExhausted, got %v", err)
	}
}

func TestTerminateUnknownSessionIsNoop(t *testing.T) {
	sv, _ := newTestSupervisor(t, Config{MaxSlots: 1, Executable: "/bin/sh", ExtraArgs: []string{"-c"}})
	if err := sv.Terminate("does-not-exist"); err != nil {
		t.Fatalf("Terminate unknown session: %v", err)
	}
}

func TestTerminateFreesSlotForReuse(t *testing.T) {
	sv, _ := newTestSupervisor(t, Config{MaxSlots: 1, Executable: "/bin/sh", ExtraArgs: []string{"-c"}})

	sess, err := sv.Spawn(t.TempDir(), "sleep 30")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if err := sv.Terminate(sess.ID); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	waitUntil(t, 6*time.Second, func() bool {
		_, err := sv.Spawn(t.TempDir(), "echo reused")
		return err == nil
	})
}

func TestSendInputResetsLastWaitType(t *testing.T) {
	sv, st := newTestSupervisor(t, Config{MaxSlots: 1, Executable: "/bin/sh", ExtraArgs: []string{"-c"}})

	sess, err := sv.Spawn(t.TempDir(), "cat")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := st.SetLastWaitType(sess.ID, "prompt"); err != nil {
		t.Fatalf("seed last wait type: %v", err)
	}

	if _, err := sv.SendInput(sess.ID, "hello"); err != nil {
		t.Fatalf("SendInput: %v", err)
	}

	got, err := st.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.LastWaitType != "" {
		t.Fatalf("expected last wait type cleared, got %q", got.LastWaitType)
	}

	_ = sv.Terminate(sess.ID)
}
