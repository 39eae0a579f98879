// Package sweeper implements the Session Timeout Sweeper (§4.K): a
// periodic scan that terminates sessions whose output has gone
// unpolled for too long, so a coordinator that stops calling GetOutput
// does not hoard a slot forever.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentharness/harness/internal/logging"
)

// Terminator is the subset of the PTY Supervisor the sweeper depends on.
type Terminator interface {
	FindStaleSessions(timeout time.Duration) []string
	Terminate(id string) error
}

// Sweeper periodically terminates stale sessions.
type Sweeper struct {
	sup      Terminator
	interval time.Duration
	timeout  time.Duration
}

// New creates a Sweeper that scans every interval and terminates sessions
// idle longer than timeout. A timeout of 0 disables sweeping entirely
// (Run then only waits for its context to be cancelled).
func New(sup Terminator, interval, timeout time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Sweeper{sup: sup, interval: interval, timeout: timeout}
}

// Run blocks, sweeping on every tick, until ctx is cancelled. Intended to
// be run in its own goroutine under the daemon's errgroup.
func (sw *Sweeper) Run(ctx context.Context) error {
	if sw.timeout <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sw.sweepOnce()
		}
	}
}

func (sw *Sweeper) sweepOnce() {
	stale := sw.sup.FindStaleSessions(sw.timeout)
	for _, id := range stale {
		if err := sw.sup.Terminate(id); err != nil {
			logging.Named("sweeper").Warn("failed to terminate stale session",
				zap.String("sessionId", id), zap.Error(err))
			continue
		}
		logging.Named("sweeper").Info("terminated stale session",
			zap.String("sessionId", id), zap.Duration("timeout", sw.timeout))
	}
}
