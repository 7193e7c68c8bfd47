package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/hagwon-ai/hagwon/config"
	"github.com/hagwon-ai/hagwon/internal/embedding"
	"github.com/hagwon-ai/hagwon/internal/ingest"
	"github.com/hagwon-ai/hagwon/internal/store"
	openai_provider "github.com/hagwon-ai/hagwon/provider/openai"
)

func ingestCMD() *cobra.Command {
	var cfgPath string
	var title string

	var ing = &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Chunk, store and embed study documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			pipeline, db, err := buildPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			for _, path := range args {
				raw, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				docTitle := title
				if docTitle == "" {
					docTitle = filepath.Base(path)
				}
				result, err := pipeline.IngestDocument(cmd.Context(), docTitle, string(raw))
				if err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
				fmt.Printf("%s: document %s, %d chunks, embedded %d ok / %d failed\n",
					path, result.DocumentID, result.ChunkCount, result.Embedding.Success, result.Embedding.Failed)
			}
			return nil
		},
	}
	ing.Flags().StringVar(&title, "title", "", "document title (defaults to file name)")
	ing.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return ing
}

func embedCMD() *cobra.Command {
	var cfgPath string

	var embed = &cobra.Command{
		Use:   "embed",
		Short: "Backfill embeddings for chunks that lack one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			pipeline, db, err := buildPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			tally, err := pipeline.EmbedMissing(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("embedded %d ok / %d failed\n", tally.Success, tally.Failed)
			return nil
		},
	}
	embed.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return embed
}

func buildPipeline(ctx context.Context, cfg *config.Config) (*ingest.Pipeline, *sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Storage.Postgres.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	llm := openai_provider.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.CompletionModel,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.EmbeddingDimensions,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.Timeout,
	)
	st := &store.Store{DB: db}
	embedder := embedding.NewClient(llm, cfg.LLM.EmbeddingDimensions, cfg.Ingest.BatchSize)

	return ingest.NewPipeline(st, embedder, cfg.Ingest, cfg.LLM.EmbeddingModel), db, nil
}
