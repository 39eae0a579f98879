// Package ptysup is the PTY Supervisor (§4.C): it owns every live child
// process, the fixed slot pool, and the per-session ring buffer. It is
// grounded on the teacher webserver's handleTerminalWebSocket (PTY
// allocation, resize, and process-group kill via pty.StartWithAttrs /
// pty.Setsize / syscall.Kill(-pid, ...)) and on the agent package's
// exec.CommandContext + cmd.Cancel process-group-kill idiom for the
// non-interactive executable path.
package ptysup

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/agentharness/harness/internal/eventbus"
	"github.com/agentharness/harness/internal/ringbuffer"
	"github.com/agentharness/harness/internal/store"
)

// Config controls how the supervisor spawns children.
type Config struct {
	// MaxSlots is the fixed number of concurrently live sessions.
	MaxSlots int
	// Executable is the child binary to launch when the caller does not
	// override it per-Spawn.
	Executable string
	// IsInteractiveCLI marks Executable as the target interactive AI-CLI,
	// which unlocks the startup handshake buffering and the
	// skip-permission-prompts / strict-tool-environment flags.
	IsInteractiveCLI bool
	// ExtraArgs is appended to the executable's argv for every spawn.
	ExtraArgs []string
	// OutputBufferBytes is the per-session ring buffer cap.
	OutputBufferBytes int
	// HandshakeTimeout bounds how long Spawn waits for the interactive
	// CLI's readiness banner before sending the command anyway.
	HandshakeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxSlots <= 0 {
		c.MaxSlots = 4
	}
	if c.OutputBufferBytes <= 0 {
		c.OutputBufferBytes = 1 << 20
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.Executable == "" {
		c.Executable = "claude"
	}
	return c
}

// WaitDetector is fed every output chunk for a live session. The PTY
// Supervisor does not classify wait states itself (§4.D owns that); it
// only forwards settled data. Implemented by internal/waitstate.Detector.
type WaitDetector interface {
	Feed(sessionID string, tail []byte)
}

// liveSession is the in-memory handle for one running child, held only
// for the lifetime of the process (never persisted directly; the Durable
// Store mirrors its status).
type liveSession struct {
	id   string
	slot int

	ptmx *os.File
	cmd  *exec.Cmd

	ring *ringbuffer.Buffer

	mu           sync.Mutex
	lastPolledAt time.Time
	lastWaitType string

	handshakeDone chan struct{}
	once          sync.Once
}

func (ls *liveSession) markPolled(at time.Time) {
	ls.mu.Lock()
	ls.lastPolledAt = at
	ls.mu.Unlock()
}

func (ls *liveSession) polledAt() time.Time {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.lastPolledAt
}

// Supervisor is the PTY Supervisor of §4.C.
type Supervisor struct {
	cfg Config

	store    *store.Store
	bus      *eventbus.Bus
	detector WaitDetector

	spawnLock sync.Mutex

	mu       sync.Mutex
	slots    map[int]bool // true = free
	sessions map[string]*liveSession
}

// New creates a Supervisor backed by st and bus. detector may be nil, in
// which case output chunks are buffered and discarded by the wait-state
// path (useful for tests that only exercise slot/process lifecycle).
func New(cfg Config, st *store.Store, bus *eventbus.Bus, detector WaitDetector) *Supervisor {
	cfg = cfg.withDefaults()
	slots := make(map[int]bool, cfg.MaxSlots)
	for i := 1; i <= cfg.MaxSlots; i++ {
		slots[i] = true
	}
	return &Supervisor{
		cfg:      cfg,
		store:    st,
		bus:      bus,
		detector: detector,
		slots:    slots,
		sessions: make(map[string]*liveSession),
	}
}

// initialWinsize matches the fixed 80x24 initial geometry named in §4.C.
var initialWinsize = pty.Winsize{Rows: 24, Cols: 80}
