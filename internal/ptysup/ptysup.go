package ptysup

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
	"unicode"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentharness/harness/internal/eventbus"
	"github.com/agentharness/harness/internal/harnesserr"
	"github.com/agentharness/harness/internal/logging"
	"github.com/agentharness/harness/internal/ringbuffer"
	"github.com/agentharness/harness/internal/store"
)

const readBufferLen = 4096

// harnessSpawnedEnv marks a child as harness-spawned so that, should the
// child itself embed the harness tooling, it will not attempt a recursive
// bootstrap.
const harnessSpawnedEnv = "HARNESS_SPAWNED=1"

// Spawn allocates a slot, launches the configured executable inside a PTY,
// and registers the session. The configured Executable and ExtraArgs are
// always used; a non-empty command is appended as the final argument, or,
// for the interactive CLI, typed in once its startup handshake completes.
func (sv *Supervisor) Spawn(workingDir string, command string) (*store.Session, error) {
	if !sv.spawnLock.TryLock() {
		return nil, harnesserr.New(harnesserr.CodeSpawnInProgress, "a spawn is already in progress")
	}
	defer sv.spawnLock.Unlock()

	slot, err := sv.claimSlot()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	argv, interactive := sv.buildArgv(command)

	cmd := exec.Command(sv.cfg.Executable, argv...)
	cmd.Dir = workingDir
	cmd.Env = append(os.Environ(), harnessSpawnedEnv, "TERM=xterm-256color")
	attrs := &syscall.SysProcAttr{Setpgid: true}
	cmd.SysProcAttr = attrs

	ptmx, err := pty.StartWithAttrs(cmd, &initialWinsize, attrs)
	if err != nil {
		sv.releaseSlot(slot)
		return nil, harnesserr.Wrap(harnesserr.CodeInvalidArgument, "start pty", err)
	}

	now := time.Now().UTC()
	sess := &store.Session{
		ID:             id,
		Slot:           slot,
		Status:         store.SessionRunning,
		WorkingDir:     workingDir,
		CurrentCommand: command,
		StartedAt:      now,
		LastPolledAt:   now,
	}
	if cmd.Process != nil {
		pid := cmd.Process.Pid
		sess.PID = &pid
	}

	if err := sv.store.CreateSession(sess); err != nil {
		_ = ptmx.Close()
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		sv.releaseSlot(slot)
		return nil, fmt.Errorf("ptysup: persist session %s: %w", id, err)
	}

	ls := &liveSession{
		id:            id,
		slot:          slot,
		ptmx:          ptmx,
		cmd:           cmd,
		ring:          ringbuffer.New(sv.cfg.OutputBufferBytes),
		lastPolledAt:  now,
		handshakeDone: make(chan struct{}),
	}

	sv.mu.Lock()
	sv.sessions[id] = ls
	sv.mu.Unlock()

	var inspector *handshakeInspector
	if interactive && strings.TrimSpace(command) != "" {
		inspector = newHandshakeInspector(command)
	} else {
		close(ls.handshakeDone)
	}

	go sv.readLoop(ls, inspector)
	go sv.waitLoop(ls)
	if inspector != nil {
		go sv.handshakeFallback(ls, inspector)
	}

	sv.bus.Publish(eventbus.Event{Type: eventbus.SessionStarted, SessionID: id})
	logging.Named("ptysup").Info("session started",
		zap.String("session_id", id), zap.Int("slot", slot))

	return sess, nil
}

func (sv *Supervisor) buildArgv(command string) (argv []string, interactive bool) {
	argv = append(argv, sv.cfg.ExtraArgs...)
	interactive = sv.cfg.IsInteractiveCLI
	if interactive {
		// Skip permission prompts and load no upstream tool config: a
		// strict minimal tool environment for a spawned child.
		argv = append(argv, "--dangerously-skip-permissions", "--no-config")
		return argv, true
	}
	if strings.TrimSpace(command) != "" {
		argv = append(argv, command)
	}
	return argv, false
}

func (sv *Supervisor) claimSlot() (int, error) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	for slot, free := range sv.slots {
		if free {
			sv.slots[slot] = false
			return slot, nil
		}
	}
	return 0, harnesserr.New(harnesserr.CodeSlotsExhausted, "no free slot")
}

func (sv *Supervisor) releaseSlot(slot int) {
	sv.mu.Lock()
	sv.slots[slot] = true
	sv.mu.Unlock()
}

// FreeSlots returns the number of currently unclaimed slots, for metrics
// exposition.
func (sv *Supervisor) FreeSlots() int {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	free := 0
	for _, ok := range sv.slots {
		if ok {
			free++
		}
	}
	return free
}

func (sv *Supervisor) getLive(id string) (*liveSession, bool) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	ls, ok := sv.sessions[id]
	return ls, ok
}

// readLoop drains the PTY, fanning each chunk out to the ring buffer, the
// durable store, the event bus, and (once the handshake has completed)
// the wait-state detector.
func (sv *Supervisor) readLoop(ls *liveSession, inspector *handshakeInspector) {
	buf := make([]byte, readBufferLen)
	for {
		n, err := ls.ptmx.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			sv.handleChunk(ls, inspector, chunk)
		}
		if err != nil {
			return
		}
	}
}

func (sv *Supervisor) handleChunk(ls *liveSession, inspector *handshakeInspector, data []byte) {
	seq, err := sv.store.AppendOutput(ls.id, "stdout", data, time.Now().UTC())
	if err != nil {
		logging.Named("ptysup").Warn("append output failed", zap.String("session_id", ls.id), zap.Error(err))
		seq = 0
	}
	ls.ring.Push(ringbuffer.Chunk{Seq: seq, Stream: "stdout", Data: data})

	sv.bus.Publish(eventbus.Event{Type: eventbus.SessionOutput, SessionID: ls.id})

	if inspector != nil {
		select {
		case <-ls.handshakeDone:
		default:
			if inspector.observe(data) {
				ls.once.Do(func() {
					close(ls.handshakeDone)
					go dispatchHandshakeCommand(func(b []byte) (int, error) { return ls.ptmx.Write(b) }, inspector.command)
				})
			}
			return
		}
	}

	if sv.detector != nil {
		var tail []byte
		for _, c := range ls.ring.TailChunks(10) {
			tail = append(tail, c.Data...)
		}
		sv.detector.Feed(ls.id, tail)
	}
}

// handshakeFallback sends the buffered command unconditionally after
// HandshakeTimeout if readiness was never detected.
func (sv *Supervisor) handshakeFallback(ls *liveSession, inspector *handshakeInspector) {
	select {
	case <-ls.handshakeDone:
	case <-time.After(sv.cfg.HandshakeTimeout):
		ls.once.Do(func() { close(ls.handshakeDone) })
		dispatchHandshakeCommand(func(b []byte) (int, error) { return ls.ptmx.Write(b) }, inspector.command)
	}
}

// waitLoop blocks on process exit and runs the exit handler exactly once.
func (sv *Supervisor) waitLoop(ls *liveSession) {
	err := ls.cmd.Wait()
	_ = ls.ptmx.Close()

	sv.mu.Lock()
	delete(sv.sessions, ls.id)
	sv.slots[ls.slot] = true
	sv.mu.Unlock()

	now := time.Now().UTC()
	status := store.SessionCompleted
	evType := eventbus.SessionCompleted
	reason := ""
	if err != nil {
		status = store.SessionFailed
		evType = eventbus.SessionFailed
		reason = err.Error()
	}

	if setErr := sv.store.SetStatus(ls.id, status, &now); setErr != nil {
		logging.Named("ptysup").Error("set terminal status failed",
			zap.String("session_id", ls.id), zap.Error(setErr))
	}

	sv.bus.Publish(eventbus.Event{Type: evType, SessionID: ls.id, Reason: reason})
}

// Terminate idempotently ends a session: sends a hang-up, waits up to 5s,
// then returns. The slot is freed by the exit handler, not here.
func (sv *Supervisor) Terminate(id string) error {
	ls, ok := sv.getLive(id)
	if !ok {
		return nil
	}
	if ls.cmd.Process != nil {
		_ = syscall.Kill(-ls.cmd.Process.Pid, syscall.SIGHUP)
	}

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if _, stillLive := sv.getLive(id); !stillLive {
			return nil
		}
		select {
		case <-deadline:
			if ls.cmd.Process != nil {
				_ = syscall.Kill(-ls.cmd.Process.Pid, syscall.SIGKILL)
			}
			return nil
		case <-tick.C:
		}
	}
}

// SendInput is the "smart" input path of §4.C.
func (sv *Supervisor) SendInput(id, input string) (bool, error) {
	ls, ok := sv.getLive(id)
	if !ok {
		return false, harnesserr.New(harnesserr.CodeSessionNotFound, "no such live session")
	}

	trimmed := strings.TrimRight(input, "\r\n")

	switch {
	case trimmed == "":
		_, _ = ls.ptmx.Write([]byte("\r"))
		time.Sleep(100 * time.Millisecond)
		_, _ = ls.ptmx.Write([]byte("\r"))
	case isAllDigits(trimmed):
		_, _ = ls.ptmx.Write([]byte(trimmed))
		time.Sleep(50 * time.Millisecond)
		_, _ = ls.ptmx.Write([]byte("\r"))
		time.Sleep(100 * time.Millisecond)
		_, _ = ls.ptmx.Write([]byte("\r"))
	default:
		_, _ = ls.ptmx.Write([]byte(trimmed))
		time.Sleep(50 * time.Millisecond)
		_, _ = ls.ptmx.Write([]byte("\r"))
		time.Sleep(100 * time.Millisecond)
		_, _ = ls.ptmx.Write([]byte("\r"))
	}

	ls.mu.Lock()
	ls.lastWaitType = ""
	ls.mu.Unlock()
	_ = sv.store.SetLastWaitType(id, "")

	return true, nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// SendRawInput writes bytes exactly, with no added keystrokes.
func (sv *Supervisor) SendRawInput(id string, input []byte) (bool, error) {
	ls, ok := sv.getLive(id)
	if !ok {
		return false, harnesserr.New(harnesserr.CodeSessionNotFound, "no such live session")
	}
	if _, err := ls.ptmx.Write(input); err != nil {
		return false, fmt.Errorf("ptysup: write raw input: %w", err)
	}
	return true, nil
}

// Resize changes the PTY geometry of a live session.
func (sv *Supervisor) Resize(id string, cols, rows int) (bool, error) {
	ls, ok := sv.getLive(id)
	if !ok {
		return false, harnesserr.New(harnesserr.CodeSessionNotFound, "no such live session")
	}
	if cols <= 0 || rows <= 0 {
		return false, harnesserr.New(harnesserr.CodeInvalidArgument, "cols and rows must be positive")
	}
	if err := pty.Setsize(ls.ptmx, &pty.Winsize{Rows: clampUint16(rows), Cols: clampUint16(cols)}); err != nil {
		return false, fmt.Errorf("ptysup: resize: %w", err)
	}
	return true, nil
}

func clampUint16(v int) uint16 {
	if v < 1 {
		return 1
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}

// GetOutput returns the live chunks for a session and records that it was
// polled just now. It does not fall back to the durable store; callers
// needing history for a terminal session should read the store directly
// (the operation surface does this reconstruction).
func (sv *Supervisor) GetOutput(id string) ([]ringbuffer.Chunk, bool) {
	ls, ok := sv.getLive(id)
	if !ok {
		return nil, false
	}
	now := time.Now().UTC()
	ls.markPolled(now)
	_ = sv.store.TouchLastPolled(id, now)
	return ls.ring.Snapshot(), true
}

// FindStaleSessions returns the ids of live sessions whose lastPolledAt is
// older than timeout.
func (sv *Supervisor) FindStaleSessions(timeout time.Duration) []string {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	var stale []string
	cutoff := time.Now().UTC().Add(-timeout)
	for id, ls := range sv.sessions {
		if ls.polledAt().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale
}

// LiveSessionIDs returns the ids currently held in memory, used by
// recovery and the scanner to cross-check the store's view.
func (sv *Supervisor) LiveSessionIDs() []string {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	ids := make([]string, 0, len(sv.sessions))
	for id := range sv.sessions {
		ids = append(ids, id)
	}
	return ids
}

