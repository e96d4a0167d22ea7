package reconcile

import (
	"context"
	"fmt"

	"story-pipeline/core/docstore"
)

// ReconcileWithPlan audits the collection and returns a plan with results and actions.
// It does NOT execute actions; use ApplyPlan for that.
func ReconcileWithPlan(ctx context.Context, spec *Spec, store docstore.Store, opts ReconcileOptions) (*ReconcilePlan, error) {
	records, results, counts, err := audit(ctx, spec, store, opts)
	if err != nil {
		return nil, err
	}

	actions, err := spec.Adapter.PlanActions(ctx, records, results, opts)
	if err != nil {
		return nil, err
	}

	return &ReconcilePlan{
		Results: results,
		Actions: actions,
		Summary: buildSummary(len(records), results, counts, actions),
	}, nil
}

func buildSummary(total int, results []ReconcileResult, counts map[string]int, actions []Action) PlanSummary {
	summary := PlanSummary{TotalItems: total, Counts: counts}
	if summary.Counts == nil {
		summary.Counts = map[string]int{}
	}
	for _, r := range results {
		if len(r.Issues) > 0 {
			summary.Flagged++
		}
	}
	for _, a := range actions {
		if a.Type == ActionPatch {
			summary.PatchActions++
		}
	}
	return summary
}

// ApplyPlan executes the plan's actions in atomic batches of at most
// opts.BatchSize writes, reporting progress after each committed batch.
// Requires opts.Confirmed=true and opts.DryRun=false to actually execute.
// A failed batch stops the run; earlier batches stay committed.
func ApplyPlan(ctx context.Context, spec *Spec, store docstore.Store, plan *ReconcilePlan, opts ReconcileOptions) (executed int, err error) {
	// Safety check: do not execute if not confirmed or dry-run
	if !opts.Confirmed || opts.DryRun {
		return 0, nil
	}
	if len(plan.Actions) == 0 {
		return 0, nil
	}
	defer InvalidateCache(spec)

	size := batchSize(opts.BatchSize)
	batches := (len(plan.Actions) + size - 1) / size

	for b := 0; b < batches; b++ {
		start := b * size
		end := start + size
		if end > len(plan.Actions) {
			end = len(plan.Actions)
		}
		chunk := plan.Actions[start:end]

		if err = applyPatches(ctx, store, spec.Collection, chunk); err != nil {
			return executed, fmt.Errorf("failed to apply batch %d/%d: %w", b+1, batches, err)
		}
		executed += len(chunk)

		if opts.Progress != nil {
			opts.Progress(BatchProgress{Batch: b + 1, Batches: batches, Committed: executed, Total: len(plan.Actions)})
		}
	}
	return executed, nil
}

func applyPatches(ctx context.Context, store docstore.Store, collection string, actions []Action) error {
	batch := store.Batch()
	for _, a := range actions {
		switch a.Type {
		case ActionPatch:
			batch.Update(docstore.Doc(collection, a.Key), a.Patch)
		default:
			return fmt.Errorf("unsupported action type %q for %s", a.Type, a.Key)
		}
	}
	return batch.Commit(ctx)
}

func batchSize(n int) int {
	if n <= 0 {
		n = DefaultBatchSize
	}
	if n > docstore.MaxBatchWrites {
		n = docstore.MaxBatchWrites
	}
	return n
}
