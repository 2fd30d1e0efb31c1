package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the run store database")
	last := flag.Int("last", 20, "show N most recent runs")
	runID := flag.String("run", "", "show one run with its transcript")
	jsonOut := flag.Bool("json", false, "output as JSON instead of text")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/agentic-rag.db [--last N] [--run id] [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if *runID != "" {
		err = runDetailMode(st, *runID, *jsonOut)
	} else {
		err = runListMode(st, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
	Turns     int    `json:"turns"`
	Attempts  int    `json:"attempts"`
	Question  string `json:"question"`
	StartedAt string `json:"started_at"`
}

func runListMode(st *store.Store, last int, jsonOut bool) error {
	runs, err := st.ListRuns(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}

	rows := make([]listRow, len(runs))
	for i, r := range runs {
		rows[i] = listRow{
			RunID:     r.RunID,
			Status:    r.Status,
			Turns:     r.Turns,
			Attempts:  r.Attempts,
			Question:  r.Question,
			StartedAt: r.StartedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return writeJSON(rows)
	}
	fmt.Printf("%-36s  %-22s  %5s  %4s  %-20s  %s\n", "RUN", "STATUS", "TURNS", "TRY", "STARTED", "QUESTION")
	for _, r := range rows {
		fmt.Printf("%-36s  %-22s  %5d  %4d  %-20s  %s\n",
			r.RunID, r.Status, r.Turns, r.Attempts, r.StartedAt, clip(r.Question, 60))
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailView struct {
	Run   logging.RunSummary  `json:"run"`
	Turns []logging.TurnEntry `json:"turns"`
}

func runDetailMode(st *store.Store, runID string, jsonOut bool) error {
	run, err := st.GetRun(runID)
	if err != nil {
		return err
	}
	turns, err := st.Turns(runID)
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(detailView{Run: run, Turns: turns})
	}

	fmt.Printf("Run:       %s\n", run.RunID)
	fmt.Printf("Question:  %s\n", run.Question)
	fmt.Printf("Status:    %s (turns=%d, error_retries=%d, attempts=%d)\n",
		run.Status, run.Turns, run.ErrorRetries, run.Attempts)
	if run.Answer != "" {
		fmt.Printf("Answer:    %s\n", run.Answer)
	}
	if run.FeedbackJSON != "" {
		fmt.Printf("Feedback:  %s\n", run.FeedbackJSON)
	}
	if run.Error != "" {
		fmt.Printf("Error:     %s\n", run.Error)
	}

	attempt := 0
	for _, t := range turns {
		if t.Attempt != attempt {
			attempt = t.Attempt
			fmt.Printf("\n=== attempt %d ===\n", attempt)
		}
		fmt.Printf("\n--- turn %d [%s, error_retries=%d] ---\n", t.Turn, t.Outcome, t.ErrorRetries)
		if t.Thought != "" {
			fmt.Printf("Thought: %s\n", t.Thought)
		}
		fmt.Printf("Action: %s\n", t.Action)
		if t.Input != "" {
			fmt.Printf("Action Input: %s\n", t.Input)
		}
		fmt.Printf("Observation: %s\n", t.Observation)
	}
	return nil
}

// #endregion detail-mode

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
