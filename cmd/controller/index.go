package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/retrieval"
)

var (
	indexCorpus    string
	indexBatchSize int
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed a corpus directory into the pgvector chunk_embeddings table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := newBaseApp()
		if err != nil {
			return err
		}
		defer a.Close()

		cfg := a.cfg.Retrieval
		if cfg.Backend != "pgvector" {
			return fmt.Errorf("index writes to pgvector; retrieval.backend is %q", cfg.Backend)
		}
		dir := indexCorpus
		if dir == "" {
			dir = cfg.Corpus
		}
		if dir == "" {
			return fmt.Errorf("no corpus directory: pass --corpus or set retrieval.corpus")
		}

		_, embedder, _, err := a.models()
		if err != nil {
			return err
		}
		pg, err := retrieval.OpenPGVector(cfg.PostgresDSN, embedder, cfg.SimilarityThreshold)
		if err != nil {
			return err
		}
		defer pg.Close()

		passages, err := retrieval.LoadCorpus(dir, cfg.ChunkSize, cfg.ChunkOverlap)
		if err != nil {
			return err
		}
		if indexBatchSize <= 0 {
			indexBatchSize = 64
		}
		a.logger.Info("indexing corpus", zap.String("dir", dir), zap.Int("passages", len(passages)))

		for start := 0; start < len(passages); start += indexBatchSize {
			end := min(start+indexBatchSize, len(passages))
			if err := pg.Add(ctx, passages[start:end]...); err != nil {
				return fmt.Errorf("index passages %d-%d: %w", start, end, err)
			}
			a.logger.Info("indexed", zap.Int("done", end), zap.Int("total", len(passages)))
		}
		fmt.Printf("indexed %d passages from %s\n", len(passages), dir)
		return nil
	},
}

func init() {
	indexCmd.Flags().StringVar(&indexCorpus, "corpus", "", "corpus directory (default retrieval.corpus)")
	indexCmd.Flags().IntVar(&indexBatchSize, "batch", 64, "passages per insert batch")
}
