package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeTerminator struct {
	mu          sync.Mutex
	stale       []string
	terminated  []string
	findCalls   int
}

func (f *fakeTerminator) FindStaleSessions(timeout time.Duration) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	return f.stale
}

func (f *fakeTerminator) Terminate(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, id)
	return nil
}

func (f *fakeTerminator) snapshot() (terminated []string, findCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.terminated...), f.findCalls
}

func TestRunTerminatesStaleSessionsOnEachTick(t *testing.T) {
	term := &fakeTerminator{stale: []string{"s1", "s2"}}
	sw := New(term, 20*time.Millisecond, 10*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	terminated, findCalls := term.snapshot()
	if findCalls == 0 {
		t.Fatalf("expected at least one sweep tick")
	}
	if len(terminated) == 0 {
		t.Fatalf("expected stale sessions to be terminated")
	}
}

func TestRunWithZeroTimeoutNeverSweeps(t *testing.T) {
	term := &fakeTerminator{stale: []string{"s1"}}
	sw := New(term, 10*time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	time.Sleep(40 * time.Millisecond)
	cancel()
	<-done

	_, findCalls := term.snapshot()
	if findCalls != 0 {
		t.Fatalf("expected sweeper disabled by zero timeout to never call FindStaleSessions, got %d calls", findCalls)
	}
}
