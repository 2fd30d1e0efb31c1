package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/controller"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/tools"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and print the answer with its citations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.controller.Run(ctx, controller.Request{Question: strings.Join(args, " ")})
		if askJSON {
			if jerr := printResultJSON(res); jerr != nil {
				return jerr
			}
		} else {
			printResult(res, a.cfg.Agent.SnippetLength)
		}
		return err
	},
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full result as JSON")
}

// #region output
func printResult(res controller.Result, snippet int) {
	if res.Answer != "" {
		fmt.Printf("\n%s\n\n", res.Answer)
	} else {
		fmt.Println("\n(no answer)")
	}
	fmt.Printf("status=%s turns=%d attempts=%d run=%s\n", res.Status, res.Turns, res.Attempts, res.RunID)
	if res.Feedback != nil {
		fmt.Printf("scores: %s\n", res.Feedback.Summary())
	}
	if len(res.Context) == 0 {
		return
	}
	fmt.Println("\nSources:")
	for i, c := range res.Context {
		src, _ := c.Metadata["source"].(string)
		if src == "" {
			src = "-"
		}
		fmt.Printf("  [%d] %s: %s\n", i+1, src, tools.Snippet(c.Content, snippet))
	}
}

func printResultJSON(res controller.Result) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// #endregion output
