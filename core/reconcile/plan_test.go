package reconcile

import (
	"context"
	"testing"

	"story-pipeline/core/docstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileWithPlan(t *testing.T) {
	store := docstore.NewMemory()
	seed(t, store, 4, func(i int) bool { return i < 2 })
	spec := &Spec{Adapter: &mockAdapter{}, Collection: "stories"}

	plan, err := ReconcileWithPlan(context.Background(), spec, store, ReconcileOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, plan.Summary.TotalItems)
	assert.Equal(t, 2, plan.Summary.Flagged)
	assert.Equal(t, 2, plan.Summary.PatchActions)
	assert.Equal(t, 2, plan.Summary.Counts["missing_title"])
	require.Len(t, plan.Actions, 2)
	assert.Equal(t, "s002", plan.Actions[0].Key)
}

func TestApplyPlan_RequiresConfirmation(t *testing.T) {
	store := docstore.NewMemory()
	seed(t, store, 3, func(int) bool { return false })
	spec := &Spec{Adapter: &mockAdapter{}, Collection: "stories"}

	plan, err := ReconcileWithPlan(context.Background(), spec, store, ReconcileOptions{})
	require.NoError(t, err)

	for _, opts := range []ReconcileOptions{
		{Confirmed: false},
		{Confirmed: true, DryRun: true},
	} {
		executed, err := ApplyPlan(context.Background(), spec, store, plan, opts)
		require.NoError(t, err)
		assert.Equal(t, 0, executed)
	}

	snap, err := store.Get(context.Background(), docstore.Doc("stories", "s000"))
	require.NoError(t, err)
	assert.Nil(t, snap.Field("title"))
}

func TestApplyPlan_CommitsInBatches(t *testing.T) {
	store := docstore.NewMemory()
	seed(t, store, 10, func(int) bool { return false })
	spec := &Spec{Adapter: &mockAdapter{}, Collection: "stories"}

	var progress []BatchProgress
	opts := ReconcileOptions{
		Confirmed: true,
		BatchSize: 4,
		Progress:  func(p BatchProgress) { progress = append(progress, p) },
	}
	plan, err := ReconcileWithPlan(context.Background(), spec, store, opts)
	require.NoError(t, err)
	executed, err := ApplyPlan(context.Background(), spec, store, plan, opts)
	require.NoError(t, err)
	assert.Equal(t, 10, executed)
	assert.Len(t, plan.Actions, 10)

	require.Len(t, progress, 3)
	assert.Equal(t, BatchProgress{Batch: 1, Batches: 3, Committed: 4, Total: 10}, progress[0])
	assert.Equal(t, BatchProgress{Batch: 3, Batches: 3, Committed: 10, Total: 10}, progress[2])

	after, err := ReconcileWithPlan(context.Background(), spec, store, ReconcileOptions{})
	require.NoError(t, err)
	assert.Empty(t, after.Actions)
}

func TestApplyPlan_StopsAtFailedBatch(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	seed(t, store, 2, func(int) bool { return false })
	spec := &Spec{Adapter: &mockAdapter{}, Collection: "stories"}
	plan := &ReconcilePlan{Actions: []Action{
		{Type: ActionPatch, Key: "s000", Patch: docstore.Patch{"title": "a"}},
		{Type: ActionPatch, Key: "s001", Patch: docstore.Patch{"title": "b"}},
		{Type: ActionPatch, Key: "ghost", Patch: docstore.Patch{"title": "c"}},
	}}

	executed, err := ApplyPlan(ctx, spec, store, plan, ReconcileOptions{Confirmed: true, BatchSize: 2})
	assert.ErrorContains(t, err, "batch 2/2")
	assert.Equal(t, 2, executed)

	snap, err := store.Get(ctx, docstore.Doc("stories", "s001"))
	require.NoError(t, err)
	assert.Equal(t, "b", snap.Field("title"))
}

func TestApplyPlan_MissingRecordFailsBatch(t *testing.T) {
	spec := &Spec{Adapter: &mockAdapter{}, Collection: "stories"}
	plan := &ReconcilePlan{Actions: []Action{{Type: ActionPatch, Key: "ghost", Patch: docstore.Patch{"title": "x"}}}}

	_, err := ApplyPlan(context.Background(), spec, docstore.NewMemory(), plan, ReconcileOptions{Confirmed: true})
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestBatchSize(t *testing.T) {
	assert.Equal(t, DefaultBatchSize, batchSize(0))
	assert.Equal(t, 10, batchSize(10))
	assert.Equal(t, docstore.MaxBatchWrites, batchSize(10000))
}
