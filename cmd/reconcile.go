package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"story-pipeline/core/config"
	"story-pipeline/core/docstore"
	"story-pipeline/core/logger"
	"story-pipeline/core/reconcile"
	storiesReconcile "story-pipeline/feature/stories/reconcile"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	applyReconcile      bool
	dryRunReconcile     bool
	normalizeShareIDs   bool
	yesConfirm          bool
	reconcileCollection string
	reconcileBatchSize  int
)

// reconcileCmd is the parent command for all reconcile operations.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Audit and repair the story collection",
	Long: `Reconcile scans the story collection, reports records that break the
collection invariants and optionally writes the repairs in atomic batches.`,
}

// shareIDsReconcileCmd repairs missing and duplicate share ids.
var shareIDsReconcileCmd = &cobra.Command{
	Use:   "shareids",
	Short: "Assign unique share ids (report + optionally apply)",
	Long: `Audits share ids: every story must carry a unique positive integer.

Among stories sharing a value the earliest created keeps it. The others and
the stories without one get the smallest free integers.

Examples:
  # Report only
  reconcile shareids

  # Apply with interactive confirmation
  reconcile shareids --apply

  # Apply and rewrite legacy string ids, non-interactive
  reconcile shareids --apply --normalize --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(cmd.Context(), storiesReconcile.NewShareIDAdapter())
	},
}

// fieldsReconcileCmd backfills createdAt and title.
var fieldsReconcileCmd = &cobra.Command{
	Use:   "fields",
	Short: "Backfill missing createdAt and title fields",
	Long: `Audits the ordering and display fields. Records without createdAt get the
document creation time; records without a title get one derived from the id.

Examples:
  reconcile fields
  reconcile fields --apply --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(cmd.Context(), storiesReconcile.NewFieldsAdapter())
	},
}

func init() {
	reconcileCmd.AddCommand(shareIDsReconcileCmd)
	reconcileCmd.AddCommand(fieldsReconcileCmd)

	flags := reconcileCmd.PersistentFlags()
	flags.BoolVar(&applyReconcile, "apply", false, "Write the planned repairs")
	flags.BoolVar(&dryRunReconcile, "dry-run", false, "Force dry-run (no writes even with --apply)")
	flags.BoolVar(&yesConfirm, "yes", false, "Auto-confirm writes (non-interactive)")
	flags.StringVar(&reconcileCollection, "collection", "", "Collection to scan (defaults to pipeline.collection)")
	flags.IntVar(&reconcileBatchSize, "batch-size", 0, "Writes per atomic batch (defaults to reconcile.batch_size)")

	shareIDsReconcileCmd.Flags().BoolVar(&normalizeShareIDs, "normalize", false, "Rewrite legacy string share ids as integers")

	RootCmd.AddCommand(reconcileCmd)
}

func runReconcile(ctx context.Context, adapter reconcile.Adapter) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, err := docstore.Open(ctx, cfg.DocStore, cfg.Database, cfg.Mongo, l)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}
	defer store.Close(context.WithoutCancel(ctx))

	collection := reconcileCollection
	if collection == "" {
		collection = cfg.Pipeline.Collection
	}
	if collection == "" {
		collection = "stories"
	}
	size := reconcileBatchSize
	if size <= 0 {
		size = cfg.Reconcile.BatchSize
	}

	spec := &reconcile.Spec{
		Adapter:    adapter,
		Collection: collection,
	}
	opts := reconcile.ReconcileOptions{
		DryRun:    dryRunReconcile,
		BatchSize: size,
		Flags:     map[string]bool{storiesReconcile.FlagNormalize: normalizeShareIDs},
		Progress: func(p reconcile.BatchProgress) {
			l.Info("Committed batch",
				zap.Int("batch", p.Batch),
				zap.Int("batches", p.Batches),
				zap.Int("committed", p.Committed),
				zap.Int("total", p.Total),
			)
		},
	}

	l.Info("Planning reconciliation...", zap.String("adapter", adapter.Name()), zap.String("collection", collection))
	plan, err := reconcile.ReconcileWithPlan(ctx, spec, store, opts)
	if err != nil {
		return fmt.Errorf("failed to plan reconciliation: %w", err)
	}

	printReconcileReport(l, plan)

	if !applyReconcile {
		if len(plan.Actions) > 0 {
			l.Info("No changes written. Use --apply to write the planned repairs.")
		}
		return nil
	}
	if dryRunReconcile {
		l.Info("Dry-run mode: No changes were made.")
		return nil
	}
	if len(plan.Actions) == 0 {
		l.Info("Nothing to repair.")
		return nil
	}

	if !confirmDestructiveAction() {
		l.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}
	opts.Confirmed = true

	l.Info("Applying actions...")
	executed, err := reconcile.ApplyPlan(ctx, spec, store, plan, opts)
	if err != nil {
		return fmt.Errorf("failed to apply plan after %d writes: %w", executed, err)
	}

	l.Info("Successfully executed actions", zap.Int("count", executed))
	return nil
}

// printReconcileReport prints a formatted reconciliation report using logger.
func printReconcileReport(l *zap.Logger, plan *reconcile.ReconcilePlan) {
	s := plan.Summary

	fields := []zap.Field{
		zap.Int("total_items", s.TotalItems),
		zap.Int("flagged", s.Flagged),
	}
	keys := make([]string, 0, len(s.Counts))
	for k := range s.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Int(k, s.Counts[k]))
	}
	l.Info("Reconciliation report", fields...)

	if len(plan.Actions) == 0 {
		return
	}
	l.Info("Planned actions", zap.Int("total_actions", len(plan.Actions)))

	maxShow := min(len(plan.Actions), 5)
	for _, action := range plan.Actions[:maxShow] {
		l.Info("Sample action",
			zap.String("type", string(action.Type)),
			zap.String("key", action.Key),
			zap.String("reason", action.Reason),
		)
	}
	if len(plan.Actions) > maxShow {
		l.Info("Additional actions not shown", zap.Int("count", len(plan.Actions)-maxShow))
	}
}

// confirmDestructiveAction prompts the user for confirmation or uses --yes flag.
func confirmDestructiveAction() bool {
	if yesConfirm {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Print("\n⚠️  Type 'yes' to confirm writes: ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	return strings.TrimSpace(response) == "yes"
}
