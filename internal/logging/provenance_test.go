package logging

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE turn_log (
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
		created_at    TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-turn-tests
func TestLogTurn_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := TurnEntry{
		RunID:        "run-1",
		Attempt:      1,
		Turn:         3,
		Thought:      "I should judge the draft.",
		Action:       "judge_answer",
		Input:        `{"answer": "draft"}`,
		Observation:  "Scores: accuracy=5/5, relevance=5/5, completeness=3/5.",
		Outcome:      "ok",
		ErrorRetries: 0,
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogTurn(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var action, outcome, createdAt string
	var turn int
	err := db.QueryRow("SELECT action, outcome, turn, created_at FROM turn_log WHERE run_id = ?", "run-1").
		Scan(&action, &outcome, &turn, &createdAt)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if action != "judge_answer" || outcome != "ok" || turn != 3 {
		t.Errorf("unexpected row: action=%s outcome=%s turn=%d", action, outcome, turn)
	}
	if createdAt != "2026-01-01T00:00:00Z" {
		t.Errorf("created_at = %s", createdAt)
	}
}

func TestLogTurn_EmptyFieldsStoredAsNull(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	err := LogTurn(db, TurnEntry{RunID: "run-2", Turn: 1, Action: "error", Outcome: "parse_error"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var thought, input sql.NullString
	var attempt int
	var createdAt string
	err = db.QueryRow("SELECT thought, input, attempt, created_at FROM turn_log WHERE run_id = ?", "run-2").
		Scan(&thought, &input, &attempt, &createdAt)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if thought.Valid || input.Valid {
		t.Error("expected NULL thought and input")
	}
	if attempt != 1 {
		t.Errorf("attempt defaults to 1, got %d", attempt)
	}
	if createdAt == "" {
		t.Error("created_at should be filled in")
	}
}

func TestLogTurn_MissingTable(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := LogTurn(db, TurnEntry{RunID: "r", Action: "rerank", Outcome: "ok"}); err == nil {
		t.Fatal("expected error without turn_log table")
	}
}

// #endregion log-turn-tests

// #region logger-tests
func TestNewLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controller.log")
	logger, err := NewLogger(Config{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("run finished")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected log file content")
	}
}

func TestNewLogger_BadLevel(t *testing.T) {
	if _, err := NewLogger(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

// #endregion logger-tests
