package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"story-pipeline/core/config"
	"story-pipeline/core/logger"
	"story-pipeline/feature/stories"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	ingestContentType string
	ingestAll         bool
)

// ingestCmd replays uploads that were missed or need reprocessing.
var ingestCmd = &cobra.Command{
	Use:   "ingest [object-key]",
	Short: "Replay an upload through the ingestion path",
	Long: `Ingest runs an existing object through the same path as a finalize event.
Replays are idempotent: a repeated run rewrites the same fields.

Examples:
  # One object, content type read from storage
  ingest stories/en/bedtime/goodnight-moon/audio.mp3

  # Every object under the root token
  ingest --all`,
	Args: func(cmd *cobra.Command, args []string) error {
		if ingestAll && len(args) > 0 {
			return errors.New("--all takes no object key")
		}
		if !ingestAll && len(args) != 1 {
			return errors.New("expected one object key, or --all")
		}
		return nil
	},
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestContentType, "content-type", "", "Content type of the object (read from storage when empty)")
	ingestCmd.Flags().BoolVar(&ingestAll, "all", false, "Replay every object under the root token")

	RootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	p, err := openPipeline(ctx, cfg, l, nil)
	if err != nil {
		return err
	}
	defer p.Close(context.WithoutCancel(ctx))

	svc := p.feature.Service()

	if ingestAll {
		counts, err := svc.Rescan(ctx)
		logOutcomes(l, counts)
		if err != nil {
			return fmt.Errorf("failed to rescan bucket: %w", err)
		}
		return nil
	}

	out, err := svc.Replay(ctx, args[0], ingestContentType)
	if err != nil {
		return fmt.Errorf("failed to ingest %s: %w", args[0], err)
	}
	l.Info("Ingested object", zap.String("object", args[0]), zap.String("outcome", string(out)))
	return nil
}

func logOutcomes(l *zap.Logger, counts map[stories.Outcome]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.Int(k, counts[stories.Outcome(k)]))
	}
	l.Info("Rescan finished", fields...)
}
