// Package protocolsync keeps each project root's on-disk Protocol
// Directory mirror (§4.L) in step with the Durable Store by subscribing
// to the event bus and echoing every session lifecycle transition to
// the corresponding protocoldir.Mirror. It is the only writer of
// status.json and result.json; checkpoint.json and
// checkpoint_response.json are written directly by the operation
// surface at the moment those events happen, since that is where the
// checkpoint's full content (type, workflow, summary, response text) is
// already in hand.
package protocolsync

import (
	"context"

	"github.com/agentharness/harness/internal/eventbus"
	"github.com/agentharness/harness/internal/logging"
	"github.com/agentharness/harness/internal/protocoldir"
	"github.com/agentharness/harness/internal/store"
	"go.uber.org/zap"
)

// watchTypes is the set of lifecycle events that change a session's
// on-disk status.
var watchTypes = []eventbus.Type{
	eventbus.SessionStarted,
	eventbus.SessionWaiting,
	eventbus.SessionCompleted,
	eventbus.SessionFailed,
}

// Syncer drains lifecycle events from a Bus subscription and mirrors
// them to disk.
type Syncer struct {
	store *store.Store
	bus   *eventbus.Bus
}

// New creates a Syncer backed by st, reading events from bus.
func New(st *store.Store, bus *eventbus.Bus) *Syncer {
	return &Syncer{store: st, bus: bus}
}

// Run subscribes to the bus and blocks, writing a mirror update for
// every session lifecycle event, until ctx is canceled.
func (s *Syncer) Run(ctx context.Context) error {
	sub := s.bus.Subscribe(nil, watchTypes, 64)
	defer sub.Close()

	log := logging.Named("protocolsync")

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := s.handle(ev); err != nil {
				log.Warn("mirror write failed",
					zap.String("sessionId", ev.SessionID),
					zap.String("type", string(ev.Type)),
					zap.Error(err))
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Syncer) handle(ev eventbus.Event) error {
	sess, err := s.store.GetSession(ev.SessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}

	mirror := protocoldir.New(sess.WorkingDir)

	if err := mirror.WriteSessionStatus(sess.ID, protocoldir.SessionStatus{
		SessionID: sess.ID,
		Status:    string(sess.Status),
		UpdatedAt: sess.LastPolledAt,
	}); err != nil {
		return err
	}

	if ev.Type != eventbus.SessionCompleted && ev.Type != eventbus.SessionFailed {
		return nil
	}

	endedAt := sess.LastPolledAt
	if sess.EndedAt != nil {
		endedAt = *sess.EndedAt
	}
	return mirror.WriteResult(sess.ID, protocoldir.Result{
		Status:  string(sess.Status),
		Summary: ev.Reason,
		EndedAt: endedAt,
	})
}
