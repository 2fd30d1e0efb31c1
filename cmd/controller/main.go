package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "controller",
	Short: "Agentic retrieval-answer controller",
	Long: `controller answers questions with a ReAct loop: a chat model picks search,
rerank and judge steps, and an answer is accepted only after it has been
judged to meet the accuracy, relevance and completeness thresholds.

Example:
  controller ask "What security features does Product X have?"
  controller index --corpus ./docs`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.AddCommand(askCmd, replCmd, indexCmd)
}

// #region main
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// #endregion main
