// Package lifecycle wires the daemon-level side effects of a session
// reaching a terminal state: releasing the Wait-State Detector's
// per-session timers and, for an execute session, advancing the
// Orchestration Gate's execution-state machine. Both are driven off the
// event bus rather than called inline from the operation surface, since
// neither depends on the HTTP request that happened to end the session
// (a session can also go terminal via the sweeper or a crashed child
// picked up by startup recovery).
package lifecycle

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentharness/harness/internal/eventbus"
	"github.com/agentharness/harness/internal/gate"
	"github.com/agentharness/harness/internal/logging"
	"github.com/agentharness/harness/internal/store"
)

// Forgetter is the subset of waitstate.Detector the Coordinator needs.
type Forgetter interface {
	Forget(sessionID string)
}

// Coordinator subscribes to session-terminal events and applies their
// daemon-level side effects.
type Coordinator struct {
	store    *store.Store
	bus      *eventbus.Bus
	gate     *gate.Gate
	detector Forgetter
}

// New creates a Coordinator backed by st and bus.
func New(st *store.Store, bus *eventbus.Bus, g *gate.Gate, detector Forgetter) *Coordinator {
	return &Coordinator{store: st, bus: bus, gate: g, detector: detector}
}

// Run subscribes to the bus and blocks until ctx is canceled.
func (c *Coordinator) Run(ctx context.Context) error {
	sub := c.bus.Subscribe(nil, []eventbus.Type{eventbus.SessionCompleted, eventbus.SessionFailed}, 64)
	defer sub.Close()

	log := logging.Named("lifecycle")

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := c.handle(ev); err != nil {
				log.Warn("terminal session handling failed",
					zap.String("sessionId", ev.SessionID), zap.Error(err))
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Coordinator) handle(ev eventbus.Event) error {
	c.detector.Forget(ev.SessionID)

	sess, err := c.store.GetSession(ev.SessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}

	family, phase, _, ok := gate.Classify(sess.CurrentCommand)
	if !ok || family != gate.FamilyExecute {
		return nil
	}

	return c.gate.OnExecuteSessionTerminal(sess.WorkingDir, phase, ev.Type == eventbus.SessionCompleted)
}
