package reconcile

import (
	"context"

	"story-pipeline/core/docstore"
)

// Adapter defines the record-specific audit logic.
// Each adapter inspects a whole collection at once, because some checks
// (duplicate detection) depend on every record.
type Adapter interface {
	// Name returns the unique name of this adapter (e.g. "shareids", "fields").
	Name() string

	// Audit inspects every record and returns per-record results plus
	// adapter-specific tallies. It never writes.
	Audit(ctx context.Context, records []*docstore.Snapshot, opts ReconcileOptions) ([]ReconcileResult, map[string]int, error)

	// PlanActions turns the audit into the mutations that repair it,
	// in the order they must be applied.
	PlanActions(ctx context.Context, records []*docstore.Snapshot, results []ReconcileResult, opts ReconcileOptions) ([]Action, error)
}
