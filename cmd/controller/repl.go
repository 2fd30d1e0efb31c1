package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/controller"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Answer questions interactively; earlier answers are kept as conversation history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Println("Agentic RAG controller ready.")
		fmt.Printf("  LLM: %s (%s) | Retrieval: %s | Store: %s\n",
			a.cfg.LLM.Provider, a.cfg.LLM.Model, a.cfg.Retrieval.Backend, a.cfg.Store.Path)
		fmt.Println("Type a question ('reset' clears history, 'quit' exits):")

		var history []controller.Exchange
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			q := strings.TrimSpace(scanner.Text())
			switch q {
			case "":
				continue
			case "quit", "exit":
				return nil
			case "reset":
				history = nil
				fmt.Println("history cleared")
				continue
			}

			res, err := a.controller.Run(ctx, controller.Request{Question: q, History: history})
			if err != nil {
				if errors.Is(err, ctx.Err()) {
					return nil
				}
				fmt.Fprintf(os.Stderr, "run error: %v\n", err)
			}
			printResult(res, a.cfg.Agent.SnippetLength)
			fmt.Println()
			if res.Answer != "" {
				history = append(history, controller.Exchange{Question: q, Answer: res.Answer})
			}
		}
		return scanner.Err()
	},
}
