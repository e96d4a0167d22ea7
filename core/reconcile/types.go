package reconcile

import (
	"time"

	"story-pipeline/core/docstore"
)

// ReconcileResult is the audit outcome for a single record.
type ReconcileResult struct {
	// ID is the record's document id.
	ID string `json:"id"`

	// Name is a display name (usually the title).
	Name string `json:"name"`

	// Issues lists what is wrong with the record, e.g. "share_id: missing".
	// Empty for healthy records.
	Issues []string `json:"issues"`

	// Metadata carries adapter-specific values (e.g. the current share id).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Spec defines one reconciliation: which adapter runs over which collection.
type Spec struct {
	// Adapter provides the record-level audit and repair logic.
	Adapter Adapter

	// Collection is the document collection to scan.
	Collection string

	// CacheTTL is how long a loaded collection may be reused for audits.
	// If zero, caching is disabled.
	CacheTTL time.Duration
}

// CacheKey returns a unique key for caching based on spec parameters.
func (s *Spec) CacheKey() string {
	return s.Adapter.Name() + "|" + s.Collection
}

// ActionType represents the type of mutation action.
type ActionType string

const (
	// ActionPatch merges Action.Patch into the record.
	ActionPatch ActionType = "patch"
)

// Action is one planned record mutation.
type Action struct {
	// Type specifies the action to perform.
	Type ActionType `json:"type"`

	// Key is the record id.
	Key string `json:"key"`

	// Reason explains why this action is needed.
	Reason string `json:"reason"`

	// Patch holds the fields to write.
	Patch docstore.Patch `json:"patch,omitempty"`
}

// ReconcilePlan contains audit results and planned actions.
type ReconcilePlan struct {
	// Results contains per-record audit data, ordered by id.
	Results []ReconcileResult `json:"results"`

	// Actions contains planned mutations in apply order.
	Actions []Action `json:"actions"`

	// Summary provides aggregate counts.
	Summary PlanSummary `json:"summary"`
}

// PlanSummary provides aggregate statistics for a reconcile plan.
type PlanSummary struct {
	// TotalItems is the number of records scanned.
	TotalItems int `json:"total_items"`

	// Flagged counts records with at least one issue.
	Flagged int `json:"flagged"`

	// Counts holds adapter-specific tallies (e.g. "missing", "duplicate_groups").
	Counts map[string]int `json:"counts"`

	// PatchActions counts planned patch actions.
	PatchActions int `json:"patch_actions"`
}

// BatchProgress is reported after every committed batch.
type BatchProgress struct {
	Batch     int
	Batches   int
	Committed int
	Total     int
}

// ReconcileOptions controls planning and applying.
type ReconcileOptions struct {
	// DryRun prevents execution of any mutations if true.
	DryRun bool

	// Confirmed indicates user has confirmed the writes.
	// If false, mutations will not execute regardless of DryRun.
	Confirmed bool

	// BatchSize caps the writes per atomic batch. Values above
	// docstore.MaxBatchWrites are clamped.
	BatchSize int

	// Flags passes adapter-specific switches (e.g. "normalize").
	Flags map[string]bool

	// Progress, if set, is called after every committed batch.
	Progress func(BatchProgress)
}

// Flag reports whether an adapter switch is on.
func (o ReconcileOptions) Flag(name string) bool {
	return o.Flags[name]
}

// DefaultBatchSize is used when ReconcileOptions.BatchSize is unset.
const DefaultBatchSize = 400
