// Package waitstate implements the Wait-State Detector (§4.D): it
// classifies a session's trailing output, after a quiet interval, into
// one of a small set of "the child is waiting on something" states, and
// notifies the rest of the system through the durable store and the
// event bus.
package waitstate

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/agentharness/harness/internal/eventbus"
	"github.com/agentharness/harness/internal/logging"
	"github.com/agentharness/harness/internal/store"
)

// WaitType is the classification emitted by Detector.
type WaitType string

const (
	WaitMenu       WaitType = "menu"
	WaitPermission WaitType = "permission"
	WaitContinue   WaitType = "continue"
	WaitPrompt     WaitType = "prompt"
	WaitNone       WaitType = ""
)

// quietInterval and emissionDelay are package vars (not consts) so tests
// can shrink them, mirroring the teacher orchestrator's childTimeoutUnit
// override pattern.
var (
	quietInterval = 300 * time.Millisecond
	emissionDelay = 5 * time.Second
)

// spinnerGlyphs are progress-indicator characters whose presence at the
// tail means the child is still working, not waiting at a free prompt.
var spinnerGlyphs = []string{"✶", "✻", "✽", "✢", "·", "*"}

var (
	menuRe = regexp.MustCompile(`❯\s*\d+\.\s+\S`)

	permissionRe = regexp.MustCompile(`(?i)\(y/n\)|allow\?|confirm\?|\[y/n\]`)

	continueRe = regexp.MustCompile(`(?i)press enter|press any key|continue\?`)
)

// Classify applies the §4.D procedure to an already-ANSI-stripped slice of
// text and returns the first matching wait type, or WaitNone.
func Classify(text string) (WaitType, int) {
	if menuRe.MatchString(text) {
		return WaitMenu, countMenuOptions(text)
	}
	if permissionRe.MatchString(text) {
		return WaitPermission, 0
	}
	if continueRe.MatchString(text) {
		return WaitContinue, 0
	}
	trimmed := strings.TrimRight(text, " \t\r\n")
	if strings.HasSuffix(trimmed, "❯") && !hasSpinner(text) {
		return WaitPrompt, 0
	}
	return WaitNone, 0
}

func countMenuOptions(text string) int {
	matches := regexp.MustCompile(`❯?\s*\d+\.\s+\S`).FindAllString(text, -1)
	return len(matches)
}

func hasSpinner(text string) bool {
	for _, g := range spinnerGlyphs {
		if strings.Contains(text, g) {
			return true
		}
	}
	return false
}

// sessionTimers holds the two timers a live session may have pending: the
// 300ms quiet-interval debounce and the 5s delayed-emission timer.
type sessionTimers struct {
	mu       sync.Mutex
	debounce *time.Timer
	delayed  *time.Timer
}

// Detector implements ptysup.WaitDetector.
type Detector struct {
	store *store.Store
	bus   *eventbus.Bus

	mu     sync.Mutex
	timers map[string]*sessionTimers
}

// New creates a Detector backed by st and bus.
func New(st *store.Store, bus *eventbus.Bus) *Detector {
	return &Detector{
		store:  st,
		bus:    bus,
		timers: make(map[string]*sessionTimers),
	}
}

// Feed is called by the PTY Supervisor on every output chunk. It arms or
// resets the 300ms quiet-interval debounce for sessionID; tail is the
// live ring buffer's trailing bytes at the time of the call.
func (d *Detector) Feed(sessionID string, tail []byte) {
	st := d.timersFor(sessionID)

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.debounce != nil {
		st.debounce.Stop()
	}
	st.debounce = time.AfterFunc(quietInterval, func() {
		d.onQuiet(sessionID, tail)
	})
}

func (d *Detector) timersFor(sessionID string) *sessionTimers {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.timers[sessionID]
	if !ok {
		st = &sessionTimers{}
		d.timers[sessionID] = st
	}
	return st
}

// onQuiet runs once output has settled for quietInterval: classify the
// tail, and if it differs from the session's last emitted wait type,
// schedule a delayed emission per §4.D's race-avoidance rule.
func (d *Detector) onQuiet(sessionID string, tail []byte) {
	stripped := ansi.Strip(string(tail))
	waitType, menuOptions := Classify(stripped)

	sess, err := d.store.GetSession(sessionID)
	if err != nil || sess == nil {
		return
	}
	if string(waitType) == sess.LastWaitType {
		return
	}

	// Record immediately to prevent duplicate emissions from subsequent
	// chunks classifying to the same type while the delay is pending.
	if err := d.store.SetLastWaitType(sessionID, string(waitType)); err != nil {
		logging.Named("waitstate").Warn("set last wait type failed")
	}

	if waitType == WaitNone {
		return
	}

	st := d.timersFor(sessionID)
	st.mu.Lock()
	if st.delayed != nil {
		st.delayed.Stop()
	}
	st.delayed = time.AfterFunc(emissionDelay, func() {
		d.bus.Publish(eventbus.Event{
			Type:        eventbus.SessionWaiting,
			SessionID:   sessionID,
			WaitType:    string(waitType),
			MenuOptions: menuOptions,
		})
	})
	st.mu.Unlock()
}

// Forget releases timer state for a session that has exited, called by
// the PTY Supervisor's exit handler path (via the owning daemon wiring).
func (d *Detector) Forget(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.timers[sessionID]; ok {
		st.mu.Lock()
		if st.debounce != nil {
			st.debounce.Stop()
		}
		if st.delayed != nil {
			st.delayed.Stop()
		}
		st.mu.Unlock()
		delete(d.timers, sessionID)
	}
}
