package store

import (
	"database/sql"
	"fmt"
	"time"
)

// AppendOutput appends one output chunk. seq is assigned as
// MAX(seq)+1 for the session, so reconstruction by ORDER BY seq always
// reflects arrival order — this mirrors the ring buffer's own ordering
// guarantee (§5: "per session, output chunks are delivered in arrival
// order").
func (s *Store) AppendOutput(sessionID string, stream string, data []byte, ts time.Time) (int64, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("store: append output begin: %w", err)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	if err := tx.Get(&maxSeq, `SELECT MAX(seq) FROM outputs WHERE session_id = ?`, sessionID); err != nil {
		return 0, fmt.Errorf("store: append output max seq: %w", err)
	}
	seq := int64(1)
	if maxSeq.Valid {
		seq = maxSeq.Int64 + 1
	}

	_, err = tx.Exec(
		`INSERT INTO outputs (session_id, seq, timestamp, stream, data) VALUES (?, ?, ?, ?, ?)`,
		sessionID, seq, ts, stream, data)
	if err != nil {
		return 0, fmt.Errorf("store: append output insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: append output commit: %w", err)
	}
	return seq, nil
}

// GetOutputTail reconstructs the last `lines` newline-delimited lines of a
// session's full output by concatenating chunks in seq order. This is the
// Ring Buffer's fallback path once a session's live in-memory buffer has
// been evicted or the process has exited.
func (s *Store) GetOutputTail(sessionID string, lines int) ([]byte, int, error) {
	var chunks []OutputChunk
	err := s.db.Select(&chunks,
		`SELECT * FROM outputs WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, 0, fmt.Errorf("store: get output tail for %s: %w", sessionID, err)
	}

	var all []byte
	for _, c := range chunks {
		all = append(all, c.Data...)
	}
	return tailLines(all, lines)
}

// tailLines returns the last n lines of data (newline-delimited) plus the
// count of lines actually returned.
func tailLines(data []byte, n int) ([]byte, int, error) {
	if n <= 0 || len(data) == 0 {
		return nil, 0, nil
	}

	// Walk backward counting newlines to find the start offset of the
	// last n lines.
	end := len(data)
	trailingNewline := data[end-1] == '\n'
	scanEnd := end
	if trailingNewline {
		scanEnd = end - 1
	}

	count := 0
	start := 0
	for i := scanEnd - 1; i >= 0; i-- {
		if data[i] == '\n' {
			count++
			if count == n {
				start = i + 1
				break
			}
		}
	}
	lineCount := count
	if scanEnd > 0 {
		lineCount++ // the final (possibly partial) line
	}
	if lineCount > n {
		lineCount = n
	}
	return data[start:end], lineCount, nil
}
