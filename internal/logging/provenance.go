package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-turn
// LogTurn writes a transcript block to the turn_log table.
func LogTurn(db *sql.DB, entry TurnEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Attempt == 0 {
		entry.Attempt = 1
	}

	_, err := db.Exec(
		`INSERT INTO turn_log (run_id, attempt, turn, thought, action, input, observation, outcome, error_retries, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Attempt,
		entry.Turn,
		nullIfEmpty(entry.Thought),
		entry.Action,
		nullIfEmpty(entry.Input),
		nullIfEmpty(entry.Observation),
		entry.Outcome,
		entry.ErrorRetries,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log turn: %w", err)
	}
	return nil
}

// #endregion log-turn

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
