package logging

import "time"

// #region turn-entry
// TurnEntry is a single row in the turn_log table: one transcript block as it
// was replayed to the decision-maker, plus how the controller classified it.
type TurnEntry struct {
	RunID        string
	Attempt      int // outer retry attempt, starting at 1
	Turn         int
	Thought      string
	Action       string
	Input        string
	Observation  string
	Outcome      string // "ok" | "parse_error" | "invalid_input" | "gate_rejected" | "finalized" | "tool_error" | "decision_error"
	ErrorRetries int    // error budget spent after this turn
	CreatedAt    time.Time
}

// #endregion turn-entry

// #region run-summary
// RunSummary is the terminal record of one controller run.
type RunSummary struct {
	RunID        string
	Question     string
	Status       string
	Answer       string
	Turns        int
	ErrorRetries int
	Attempts     int
	FeedbackJSON string // latest judgement, empty when never judged
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// #endregion run-summary

// #region logger-config
// Config selects log level, encoding and the optional rotated log file.
type Config struct {
	Level      string // debug | info | warn | error
	File       string // JSON log file; empty disables the file core
	Production bool   // JSON console output instead of the development encoder
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultConfig logs info and above to the console only.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 30,
	}
}

// #endregion logger-config
