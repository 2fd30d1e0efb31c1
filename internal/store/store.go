package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/logging"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	question      TEXT NOT NULL,
	status        TEXT NOT NULL,
	answer        TEXT,
	turns         INTEGER NOT NULL DEFAULT 0,
	error_retries INTEGER NOT NULL DEFAULT 0,
	attempts      INTEGER NOT NULL DEFAULT 0,
	feedback_json TEXT,
	error         TEXT,
	started_at    TEXT NOT NULL,
	finished_at   TEXT
);

CREATE TABLE IF NOT EXISTS turn_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	attempt       INTEGER NOT NULL,
	turn          INTEGER NOT NULL,
	thought       TEXT,
	action        TEXT NOT NULL,
	input         TEXT,
	observation   TEXT,
	outcome       TEXT NOT NULL,
	error_retries INTEGER NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS idx_turn_log_run ON turn_log(run_id, attempt, turn);
`

// StatusRunning marks a run that has started but not finished.
const StatusRunning = "running"

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// #endregion schema

// #region store-struct
// Store persists controller runs and their per-turn provenance in SQLite.
// It satisfies the controller's run recorder.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("pragma busy: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region recorder
// StartRun inserts a run row in the running state.
func (s *Store) StartRun(ctx context.Context, runID, question string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, question, status, started_at) VALUES (?, ?, ?, ?)`,
		runID, question, StatusRunning, startedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// RecordTurn appends one transcript block to turn_log.
func (s *Store) RecordTurn(_ context.Context, entry logging.TurnEntry) error {
	return logging.LogTurn(s.db, entry)
}

// FinishRun stores the terminal status and answer of a run.
func (s *Store) FinishRun(ctx context.Context, sum logging.RunSummary) error {
	finished := sum.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, answer = ?, turns = ?, error_retries = ?, attempts = ?,
		        feedback_json = ?, error = ?, finished_at = ?
		 WHERE run_id = ?`,
		sum.Status, nullIfEmpty(sum.Answer), sum.Turns, sum.ErrorRetries, sum.Attempts,
		nullIfEmpty(sum.FeedbackJSON), nullIfEmpty(sum.Error), finished.UTC().Format(time.RFC3339Nano),
		sum.RunID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", sum.RunID, ErrRunNotFound)
	}
	return nil
}

// #endregion recorder

// #region queries
// GetRun loads a single run.
func (s *Store) GetRun(runID string) (logging.RunSummary, error) {
	row := s.db.QueryRow(
		`SELECT run_id, question, status, answer, turns, error_retries, attempts,
		        feedback_json, error, started_at, finished_at
		 FROM runs WHERE run_id = ?`, runID)
	sum, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return logging.RunSummary{}, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return logging.RunSummary{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return sum, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]logging.RunSummary, error) {
	rows, err := s.db.Query(
		`SELECT run_id, question, status, answer, turns, error_retries, attempts,
		        feedback_json, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []logging.RunSummary
	for rows.Next() {
		sum, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, sum)
	}
	return runs, rows.Err()
}

// Turns returns the transcript of a run in attempt and turn order.
func (s *Store) Turns(runID string) ([]logging.TurnEntry, error) {
	rows, err := s.db.Query(
		`SELECT run_id, attempt, turn, thought, action, input, observation, outcome, error_retries, created_at
		 FROM turn_log WHERE run_id = ? ORDER BY attempt, turn, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("turns: %w", err)
	}
	defer rows.Close()

	var turns []logging.TurnEntry
	for rows.Next() {
		var (
			e                           logging.TurnEntry
			thought, input, observation sql.NullString
			createdAt                   string
		)
		if err := rows.Scan(&e.RunID, &e.Attempt, &e.Turn, &thought, &e.Action, &input,
			&observation, &e.Outcome, &e.ErrorRetries, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		e.Thought, e.Input, e.Observation = thought.String, input.String, observation.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		turns = append(turns, e)
	}
	return turns, rows.Err()
}

// #endregion queries

// #region helpers
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (logging.RunSummary, error) {
	var (
		sum                              logging.RunSummary
		answer, feedback, errText, ended sql.NullString
		started                          string
	)
	if err := sc.Scan(&sum.RunID, &sum.Question, &sum.Status, &answer, &sum.Turns,
		&sum.ErrorRetries, &sum.Attempts, &feedback, &errText, &started, &ended); err != nil {
		return logging.RunSummary{}, err
	}
	sum.Answer, sum.FeedbackJSON, sum.Error = answer.String, feedback.String, errText.String
	sum.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if ended.Valid {
		sum.FinishedAt, _ = time.Parse(time.RFC3339Nano, ended.String)
	}
	return sum, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
