package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/replay"
)

// #region main

type fixtureList []string

func (f *fixtureList) String() string     { return strings.Join(*f, ",") }
func (f *fixtureList) Set(v string) error { *f = append(*f, v); return nil }

func main() {
	var fixtures fixtureList
	flag.Var(&fixtures, "fixture", "path to fixture JSON (repeatable)")
	dir := flag.String("dir", "", "replay every *.json fixture in this directory")
	jsonOut := flag.Bool("json", false, "output results as JSON")
	verbose := flag.Bool("v", false, "log every turn at debug level")
	flag.Parse()

	if *dir != "" {
		matches, err := filepath.Glob(filepath.Join(*dir, "*.json"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "glob %s: %v\n", *dir, err)
			os.Exit(2)
		}
		sort.Strings(matches)
		fixtures = append(fixtures, matches...)
	}
	if len(fixtures) == 0 {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [--fixture ...]")
		fmt.Fprintln(os.Stderr, "       replay --dir internal/replay/testdata")
		os.Exit(2)
	}

	logger := zap.NewNop()
	if *verbose {
		cfg := logging.DefaultConfig()
		cfg.Level = "debug"
		l, err := logging.NewLogger(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logger: %v\n", err)
			os.Exit(2)
		}
		defer l.Sync()
		logger = l
	}

	results := replay.ReplayFiles(context.Background(), fixtures, logger)
	summary := replay.Summarize(results)

	if *jsonOut {
		printJSON(results, summary)
	} else {
		printTable(results, summary)
	}
	if summary.Failed > 0 {
		os.Exit(1)
	}
}

// #endregion main

// #region output

type jsonResult struct {
	Name       string   `json:"name"`
	Passed     bool     `json:"passed"`
	Status     string   `json:"status"`
	Turns      int      `json:"turns"`
	Answer     string   `json:"answer,omitempty"`
	Outcomes   []string `json:"outcomes"`
	Mismatches []string `json:"mismatches,omitempty"`
}

func printJSON(results []replay.ReplayResult, summary replay.ReplaySummary) {
	out := struct {
		Results []jsonResult         `json:"results"`
		Summary replay.ReplaySummary `json:"summary"`
	}{Summary: summary}
	for _, r := range results {
		out.Results = append(out.Results, jsonResult{
			Name:       r.Name,
			Passed:     r.Passed(),
			Status:     string(r.Run.Status),
			Turns:      r.Run.Turns,
			Answer:     r.Run.Answer,
			Outcomes:   r.Outcomes,
			Mismatches: r.Mismatches,
		})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func printTable(results []replay.ReplayResult, summary replay.ReplaySummary) {
	for _, r := range results {
		mark := "PASS"
		if !r.Passed() {
			mark = "FAIL"
		}
		fmt.Printf("%s  %-60s  %-24s  turns=%d\n", mark, r.Name, r.Run.Status, r.Run.Turns)
		for _, m := range r.Mismatches {
			fmt.Printf("      %s\n", m)
		}
	}
	fmt.Printf("\n%d fixtures: %d passed, %d failed, %d turns\n",
		summary.Total, summary.Passed, summary.Failed, summary.TotalTurns)
}

// #endregion output
