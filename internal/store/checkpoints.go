package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateCheckpoint inserts an explicit checkpoint and flips the owning
// session to waiting_checkpoint, atomically. Per §3's invariant, at most
// one checkpoint may be pending per session — callers should check
// GetPendingCheckpoint first, but this method does not itself enforce
// that (the Checkpoint Registry owns that policy).
func (s *Store) CreateCheckpoint(cp *Checkpoint) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("store: create checkpoint begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExec(`
		INSERT INTO checkpoints (id, session_id, type, workflow, phase, summary, next_command, data, created_at, resolved_at)
		VALUES (:id, :session_id, :type, :workflow, :phase, :summary, :next_command, :data, :created_at, :resolved_at)
	`, cp)
	if err != nil {
		return fmt.Errorf("store: create checkpoint insert: %w", err)
	}

	if _, err := tx.Exec(`UPDATE sessions SET status = ? WHERE id = ?`, SessionWaitingCheckpoint, cp.SessionID); err != nil {
		return fmt.Errorf("store: create checkpoint status flip: %w", err)
	}

	return tx.Commit()
}

// GetPendingCheckpoint returns the most recently created unresolved
// explicit checkpoint for a session, or nil if there is none.
func (s *Store) GetPendingCheckpoint(sessionID string) (*Checkpoint, error) {
	var cp Checkpoint
	err := s.db.Get(&cp, `
		SELECT * FROM checkpoints
		WHERE session_id = ? AND resolved_at IS NULL
		ORDER BY created_at DESC LIMIT 1
	`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get pending checkpoint for %s: %w", sessionID, err)
	}
	return &cp, nil
}

// ResolveCheckpoint marks a checkpoint resolved as of `at`.
func (s *Store) ResolveCheckpoint(id string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE checkpoints SET resolved_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("store: resolve checkpoint %s: %w", id, err)
	}
	return nil
}

// ResolvePendingCheckpointsForSession resolves every still-pending
// checkpoint for a session. Used when a worker message supersedes an
// explicit checkpoint (§4.E).
func (s *Store) ResolvePendingCheckpointsForSession(sessionID string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE checkpoints SET resolved_at = ? WHERE session_id = ? AND resolved_at IS NULL`,
		at, sessionID)
	if err != nil {
		return fmt.Errorf("store: resolve pending checkpoints for %s: %w", sessionID, err)
	}
	return nil
}
