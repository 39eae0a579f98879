package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateWorkerMessage inserts a new pending worker message.
func (s *Store) CreateWorkerMessage(msg *WorkerMessage) error {
	_, err := s.db.NamedExec(`
		INSERT INTO worker_messages (id, session_id, type, payload, timestamp, status, expires_at)
		VALUES (:id, :session_id, :type, :payload, :timestamp, :status, :expires_at)
	`, msg)
	if err != nil {
		return fmt.Errorf("store: create worker message %s: %w", msg.ID, err)
	}
	return nil
}

// GetWorkerMessage returns the worker message with the given id, or nil if
// absent.
func (s *Store) GetWorkerMessage(id string) (*WorkerMessage, error) {
	var msg WorkerMessage
	err := s.db.Get(&msg, `SELECT * FROM worker_messages WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get worker message %s: %w", id, err)
	}
	return &msg, nil
}

// ListPendingWorkerMessages returns pending messages for a session (or, if
// sessionID is "", across all sessions), optionally restricted to the
// given types.
func (s *Store) ListPendingWorkerMessages(sessionID string, types []WorkerMessageType) ([]WorkerMessage, error) {
	query := `SELECT * FROM worker_messages WHERE status = ?`
	args := []any{MessagePending}

	if sessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	if len(types) > 0 {
		placeholders := ""
		for i, t := range types {
			if i > 0 {
				placeholders += ", "
			}
			placeholders += "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(` AND type IN (%s)`, placeholders)
	}
	query += ` ORDER BY timestamp ASC`

	var msgs []WorkerMessage
	if err := s.db.Select(&msgs, query, args...); err != nil {
		return nil, fmt.Errorf("store: list pending worker messages: %w", err)
	}
	return msgs, nil
}

// MarkWorkerMessageResponded flips a message to responded.
func (s *Store) MarkWorkerMessageResponded(id string) error {
	_, err := s.db.Exec(`UPDATE worker_messages SET status = ? WHERE id = ?`, MessageResponded, id)
	if err != nil {
		return fmt.Errorf("store: mark worker message %s responded: %w", id, err)
	}
	return nil
}

// ExpirePendingMessages marks every still-pending message whose
// expires_at has passed as expired, returning the affected ids. Called by
// WorkerAwait's poll loop.
func (s *Store) ExpirePendingMessages(now time.Time) ([]string, error) {
	var ids []string
	err := s.db.Select(&ids,
		`SELECT id FROM worker_messages WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		MessagePending, now)
	if err != nil {
		return nil, fmt.Errorf("store: find expired messages: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlxIn(`UPDATE worker_messages SET status = ? WHERE id IN (?)`, MessageExpired, ids)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return nil, fmt.Errorf("store: expire messages: %w", err)
	}
	return ids, nil
}

// CreateOrchestratorResponse inserts the coordinator's reply and marks the
// originating worker message responded, atomically.
func (s *Store) CreateOrchestratorResponse(resp *OrchestratorResponse) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("store: create response begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExec(`
		INSERT INTO orchestrator_responses (id, session_id, in_response_to, type, payload, timestamp)
		VALUES (:id, :session_id, :in_response_to, :type, :payload, :timestamp)
	`, resp)
	if err != nil {
		return fmt.Errorf("store: create response insert: %w", err)
	}

	if _, err := tx.Exec(`UPDATE worker_messages SET status = ? WHERE id = ?`, MessageResponded, resp.InResponseTo); err != nil {
		return fmt.Errorf("store: create response mark responded: %w", err)
	}

	return tx.Commit()
}

// GetResponseTo returns the OrchestratorResponse paired with
// workerMessageID, if one has been posted yet.
func (s *Store) GetResponseTo(workerMessageID string) (*OrchestratorResponse, error) {
	var resp OrchestratorResponse
	err := s.db.Get(&resp, `SELECT * FROM orchestrator_responses WHERE in_response_to = ?`, workerMessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get response to %s: %w", workerMessageID, err)
	}
	return &resp, nil
}
