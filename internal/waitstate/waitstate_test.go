package waitstate

import (
	"testing"
	"time"

	"github.com/agentharness/harness/internal/eventbus"
	"github.com/agentharness/harness/internal/store"
)

func TestClassifyMenu(t *testing.T) {
	wt, n := Classify("Pick one:\n❯ 1. First option\n  2. Second option\n")
	if wt != WaitMenu {
		t.Fatalf("expected menu, got %q", wt)
	}
	if n == 0 {
		t.Fatalf("expected nonzero menu option count")
	}
}

func TestClassifyPermission(t *testing.T) {
	if wt, _ := Classify("Allow this tool to run? (y/n)"); wt != WaitPermission {
		t.Fatalf("expected permission, got %q", wt)
	}
	if wt, _ := Classify("Proceed? [y/n]"); wt != WaitPermission {
		t.Fatalf("expected permission, got %q", wt)
	}
}

func TestClassifyContinue(t *testing.T) {
	if wt, _ := Classify("Press Enter to continue"); wt != WaitContinue {
		t.Fatalf("expected continue, got %q", wt)
	}
}

func TestClassifyPromptSuppressedBySpinner(t *testing.T) {
	if wt, _ := Classify("✶ working...\n❯"); wt != WaitNone {
		t.Fatalf("expected no wait state while spinner present, got %q", wt)
	}
}

func TestClassifyPromptWhenIdle(t *testing.T) {
	if wt, _ := Classify("some output\n❯"); wt != WaitPrompt {
		t.Fatalf("expected prompt, got %q", wt)
	}
}

func TestClassifyStripsAnsiBeforeMatching(t *testing.T) {
	raw := "\x1b[32msome output\x1b[0m\n\x1b[1m❯\x1b[0m"
	stripped := stripForTest(raw)
	if wt, _ := Classify(stripped); wt != WaitPrompt {
		t.Fatalf("expected prompt after stripping ansi, got %q", wt)
	}
}

func TestFeedEmitsWaitingAfterQuietAndDelay(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	sess := &store.Session{
		ID: "s1", Slot: 1, Status: store.SessionRunning,
		WorkingDir: "/tmp", StartedAt: time.Now().UTC(), LastPolledAt: time.Now().UTC(),
	}
	if err := st.CreateSession(sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	oldQuiet, oldEmit := quietInterval, emissionDelay
	quietInterval = 10 * time.Millisecond
	emissionDelay = 20 * time.Millisecond
	defer func() { quietInterval, emissionDelay = oldQuiet, oldEmit }()

	bus := eventbus.New()
	sub := bus.Subscribe([]string{"s1"}, []eventbus.Type{eventbus.SessionWaiting}, 4)
	defer sub.Close()

	d := New(st, bus)
	d.Feed("s1", []byte("some output\n❯"))

	select {
	case ev := <-sub.C:
		if ev.WaitType != string(WaitPrompt) {
			t.Fatalf("expected prompt wait type, got %q", ev.WaitType)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session:waiting event")
	}

	got, err := st.GetSession("s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.LastWaitType != string(WaitPrompt) {
		t.Fatalf("expected stored last wait type %q, got %q", WaitPrompt, got.LastWaitType)
	}
}

func TestForgetCancelsPendingDelayedEmission(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	sess := &store.Session{
		ID: "s1", Slot: 1, Status: store.SessionRunning,
		WorkingDir: "/tmp", StartedAt: time.Now().UTC(), LastPolledAt: time.Now().UTC(),
	}
	if err := st.CreateSession(sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	oldQuiet, oldEmit := quietInterval, emissionDelay
	quietInterval = 10 * time.Millisecond
	emissionDelay = 50 * time.Millisecond
	defer func() { quietInterval, emissionDelay = oldQuiet, oldEmit }()

	bus := eventbus.New()
	sub := bus.Subscribe([]string{"s1"}, []eventbus.Type{eventbus.SessionWaiting}, 4)
	defer sub.Close()

	d := New(st, bus)
	d.Feed("s1", []byte("some output\n❯"))

	// Let the quiet-interval debounce fire and schedule the delayed
	// emission, then forget the session (as the lifecycle coordinator
	// does on session:completed/session:failed) before the delay elapses.
	time.Sleep(20 * time.Millisecond)
	d.Forget("s1")

	select {
	case ev := <-sub.C:
		t.Fatalf("expected no session:waiting event after Forget, got %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func stripForTest(s string) string {
	// Mirrors the ansi.Strip call in onQuiet without requiring the test to
	// depend on an unexported helper.
	out := make([]byte, 0, len(s))
	inEscape := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == 0x1b {
			inEscape = true
			continue
		}
		if inEscape {
			if c == 'm' {
				inEscape = false
			}
			continue
		}
		out = append(out, c)
	}
	return string(out)
}
