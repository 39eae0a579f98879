// Package waiter implements the State-Change Waiter (§4.I): the canonical
// replacement for a coordinator's polling loop over session state.
package waiter

import (
	"time"

	"github.com/agentharness/harness/internal/eventbus"
	"github.com/agentharness/harness/internal/store"
)

// Change is the outcome of a WaitForStateChange call.
type Change struct {
	SessionID   string
	Kind        string // "waiting" | "completed" | "failed"
	WaitType    string
	MenuOptions int
	Reason      string
}

// Result is returned by WaitForStateChange. Exactly one of Change or
// Reason is meaningful: a non-nil Change means a state change was
// observed; a nil Change with Reason set means no change occurred
// (empty watch set, or timeout).
type Result struct {
	Change  *Change
	Timeout bool
	Reason  string
}

// Waiter blocks coordinators until a watched session changes state.
type Waiter struct {
	store *store.Store
	bus   *eventbus.Bus
}

// New creates a Waiter backed by st and bus.
func New(st *store.Store, bus *eventbus.Bus) *Waiter {
	return &Waiter{store: st, bus: bus}
}

// WaitForStateChange resolves the watch set (sessionIDs, or every
// currently running session when empty), synchronously checks for an
// already-resolved state before subscribing, and otherwise blocks on the
// event bus until a matching event arrives or timeout elapses. timeout is
// not checked here; the operation surface rejects requests whose timeout
// lies outside [1s, 300s] before calling it.
func (w *Waiter) WaitForStateChange(timeout time.Duration, sessionIDs []string) (*Result, error) {
	watch, err := w.resolveWatchSet(sessionIDs)
	if err != nil {
		return nil, err
	}
	if len(watch) == 0 {
		return &Result{Reason: "no running sessions"}, nil
	}

	if change, err := w.checkAlreadyResolved(watch); err != nil {
		return nil, err
	} else if change != nil {
		return &Result{Change: change}, nil
	}

	sub := w.bus.Subscribe(watch, []eventbus.Type{
		eventbus.SessionCompleted, eventbus.SessionFailed, eventbus.SessionWaiting,
	}, len(watch))
	defer sub.Close()

	// Re-check after subscribing: a session could have resolved between
	// the synchronous check above and the subscribe call. This closes
	// the race the 5s emission delay in the Wait-State Detector exists
	// to avoid on the SessionWaiting path, and covers terminal
	// transitions unconditionally.
	if change, err := w.checkAlreadyResolved(watch); err != nil {
		return nil, err
	} else if change != nil {
		return &Result{Change: change}, nil
	}

	select {
	case ev := <-sub.C:
		return &Result{Change: eventToChange(ev)}, nil
	case <-time.After(timeout):
		return &Result{Timeout: true, Reason: "timeout"}, nil
	}
}

func (w *Waiter) resolveWatchSet(sessionIDs []string) ([]string, error) {
	if len(sessionIDs) > 0 {
		return sessionIDs, nil
	}
	return w.store.ListActiveSessionIDs()
}

func (w *Waiter) checkAlreadyResolved(watch []string) (*Change, error) {
	for _, id := range watch {
		sess, err := w.store.GetSession(id)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			continue
		}
		switch sess.Status {
		case store.SessionCompleted:
			return &Change{SessionID: id, Kind: "completed"}, nil
		case store.SessionFailed:
			return &Change{SessionID: id, Kind: "failed"}, nil
		}
		if sess.LastWaitType != "" {
			return &Change{SessionID: id, Kind: "waiting", WaitType: sess.LastWaitType}, nil
		}
	}
	return nil, nil
}

func eventToChange(ev eventbus.Event) *Change {
	c := &Change{SessionID: ev.SessionID}
	switch ev.Type {
	case eventbus.SessionCompleted:
		c.Kind = "completed"
	case eventbus.SessionFailed:
		c.Kind = "failed"
		c.Reason = ev.Reason
	case eventbus.SessionWaiting:
		c.Kind = "waiting"
		c.WaitType = ev.WaitType
		c.MenuOptions = ev.MenuOptions
	}
	return c
}
