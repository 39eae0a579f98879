package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoFreeSlot is returned by AllocateSlot when every slot in
// [1, maxSlots] is held by a non-terminal session.
var ErrNoFreeSlot = errors.New("store: no free slot")

// AllocateSlot picks the lowest-numbered slot in [1, maxSlots] not held by
// any session whose status is running or waiting_checkpoint. It takes no
// lock of its own. The PTY Supervisor does not call it; Spawn assigns
// slots from the supervisor's in-memory pool.
func (s *Store) AllocateSlot(maxSlots int) (int, error) {
	var held []int
	err := s.db.Select(&held,
		`SELECT slot FROM sessions WHERE status IN (?, ?)`,
		SessionRunning, SessionWaitingCheckpoint)
	if err != nil {
		return 0, fmt.Errorf("store: allocate slot: %w", err)
	}

	taken := make(map[int]bool, len(held))
	for _, sl := range held {
		taken[sl] = true
	}
	for slot := 1; slot <= maxSlots; slot++ {
		if !taken[slot] {
			return slot, nil
		}
	}
	return 0, ErrNoFreeSlot
}

// CreateSession inserts a new session row. Caller supplies a freshly
// generated ID and the slot it has assigned.
func (s *Store) CreateSession(sess *Session) error {
	_, err := s.db.NamedExec(`
		INSERT INTO sessions
			(id, slot, status, working_dir, current_command, started_at, ended_at, pid, last_polled_at, last_wait_type)
		VALUES
			(:id, :slot, :status, :working_dir, :current_command, :started_at, :ended_at, :pid, :last_polled_at, :last_wait_type)
	`, sess)
	if err != nil {
		return fmt.Errorf("store: create session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession returns the session with the given id.
func (s *Store) GetSession(id string) (*Session, error) {
	var sess Session
	err := s.db.Get(&sess, `SELECT * FROM sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session %s: %w", id, err)
	}
	return &sess, nil
}

// SessionFilter selects a subset of sessions for ListSessions.
type SessionFilter string

const (
	FilterAll       SessionFilter = "all"
	FilterRunning   SessionFilter = "running"
	FilterCompleted SessionFilter = "completed"
	FilterFailed    SessionFilter = "failed"
)

// ListSessions returns sessions matching filter, most recently started
// first. FilterRunning includes both `running` and `waiting_checkpoint`
// sessions, since both occupy a slot.
func (s *Store) ListSessions(filter SessionFilter) ([]Session, error) {
	var (
		sessions []Session
		err      error
	)
	switch filter {
	case FilterRunning:
		err = s.db.Select(&sessions,
			`SELECT * FROM sessions WHERE status IN (?, ?) ORDER BY started_at DESC`,
			SessionRunning, SessionWaitingCheckpoint)
	case FilterCompleted:
		err = s.db.Select(&sessions,
			`SELECT * FROM sessions WHERE status = ? ORDER BY started_at DESC`, SessionCompleted)
	case FilterFailed:
		err = s.db.Select(&sessions,
			`SELECT * FROM sessions WHERE status = ? ORDER BY started_at DESC`, SessionFailed)
	default:
		err = s.db.Select(&sessions, `SELECT * FROM sessions ORDER BY started_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list sessions (%s): %w", filter, err)
	}
	return sessions, nil
}

// ListActiveSessionIDs returns the ids of all non-terminal sessions, used
// by the State-Change Waiter to resolve its default watch set.
func (s *Store) ListActiveSessionIDs() ([]string, error) {
	var ids []string
	err := s.db.Select(&ids,
		`SELECT id FROM sessions WHERE status IN (?, ?)`,
		SessionRunning, SessionWaitingCheckpoint)
	if err != nil {
		return nil, fmt.Errorf("store: list active session ids: %w", err)
	}
	return ids, nil
}

// SetStatus transitions a session's status. When status is terminal,
// endedAt must be non-nil; the caller (PTY Supervisor exit handler) is
// responsible for enforcing the terminal-once invariant.
func (s *Store) SetStatus(id string, status SessionStatus, endedAt *time.Time) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET status = ?, ended_at = ? WHERE id = ?`,
		status, endedAt, id)
	if err != nil {
		return fmt.Errorf("store: set status for %s: %w", id, err)
	}
	return nil
}

// TouchLastPolled updates lastPolledAt, called on every GetOutput.
func (s *Store) TouchLastPolled(id string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE sessions SET last_polled_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("store: touch last polled for %s: %w", id, err)
	}
	return nil
}

// SetLastWaitType records the detector's last emitted wait type for a
// session, or clears it ("") when SendInput resets the debounce state.
func (s *Store) SetLastWaitType(id, waitType string) error {
	_, err := s.db.Exec(`UPDATE sessions SET last_wait_type = ? WHERE id = ?`, waitType, id)
	if err != nil {
		return fmt.Errorf("store: set last wait type for %s: %w", id, err)
	}
	return nil
}

// SetPID records the OS pid once the child process has been started.
func (s *Store) SetPID(id string, pid int) error {
	_, err := s.db.Exec(`UPDATE sessions SET pid = ? WHERE id = ?`, pid, id)
	if err != nil {
		return fmt.Errorf("store: set pid for %s: %w", id, err)
	}
	return nil
}

// DeleteSession removes a session and its outputs, used only by tests that
// need to reset fixtures between cases.
func (s *Store) DeleteSession(id string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM outputs WHERE session_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}
