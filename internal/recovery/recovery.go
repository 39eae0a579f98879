// Package recovery implements startup Recovery (§4.H): on daemon boot, any
// session left `running` or `waiting_checkpoint` from a prior process is
// unreachable (its PTY Supervisor state is gone) and is swept into
// `failed` rather than left to dangle.
package recovery

import (
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agentharness/harness/internal/eventbus"
	"github.com/agentharness/harness/internal/logging"
	"github.com/agentharness/harness/internal/store"
)

// Recovery sweeps stale sessions on startup.
type Recovery struct {
	store *store.Store
	bus   *eventbus.Bus
}

// New creates a Recovery backed by st, publishing completion to bus.
func New(st *store.Store, bus *eventbus.Bus) *Recovery {
	return &Recovery{store: st, bus: bus}
}

// Run scans every `running`/`waiting_checkpoint` session, attempts to kill
// any still-alive process group, and unconditionally marks each one
// `failed`. Reconnection is never attempted: a restarted daemon has no
// in-memory PTY Supervisor state for sessions it did not spawn itself.
// Returns the ids affected.
func (r *Recovery) Run() ([]string, error) {
	sessions, err := r.store.ListSessions(store.FilterRunning)
	if err != nil {
		return nil, err
	}

	var affected []string
	for _, sess := range sessions {
		if sess.PID != nil && isProcessAlive(*sess.PID) {
			terminate(*sess.PID)
		}

		now := time.Now().UTC()
		if err := r.store.SetStatus(sess.ID, store.SessionFailed, &now); err != nil {
			return affected, err
		}
		logging.Named("recovery").Warn("recovered stale session as failed",
			zap.String("sessionId", sess.ID), zap.Int("slot", sess.Slot))
		affected = append(affected, sess.ID)
	}

	if r.bus != nil {
		r.bus.Publish(eventbus.Event{
			Type:          eventbus.RecoveryComplete,
			RecoveryCount: len(affected),
			RecoveryIDs:   affected,
		})
	}

	return affected, nil
}

// isProcessAlive checks if a process with the given PID is still running,
// by sending it the null signal.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// terminate sends a polite SIGTERM to the process group and the process
// itself, waits up to 1s for it to exit, then force-kills with SIGKILL.
func terminate(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	_ = syscall.Kill(pid, syscall.SIGTERM)

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		if !isProcessAlive(pid) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	_ = syscall.Kill(-pid, syscall.SIGKILL)
	_ = syscall.Kill(pid, syscall.SIGKILL)
}
