package reconcile

import (
	"context"
	"testing"

	"story-pipeline/core/docstore"
	"story-pipeline/core/reconcile"
	"story-pipeline/core/utils"
	"story-pipeline/feature/stories/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFields_Backfill(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	put(t, store, "sleepy-owl-en", docstore.Patch{models.FieldShareID: int64(1)})
	put(t, store, "done", docstore.Patch{models.FieldTitle: "Done", models.FieldCreatedAt: at(1)})

	plan, executed := applyWith(t, store, NewFieldsAdapter(), reconcile.ReconcileOptions{})
	assert.Equal(t, 1, executed)
	assert.Equal(t, 1, plan.Summary.Counts[CountMissingTitle])

	snap, err := store.Get(ctx, docstore.Doc("stories", "sleepy-owl-en"))
	require.NoError(t, err)
	assert.Equal(t, "Sleepy Owl", snap.Field(models.FieldTitle))
	created, ok := utils.ToTime(snap.Field(models.FieldCreatedAt))
	require.True(t, ok)
	assert.True(t, created.Equal(snap.CreateTime))

	spec := &reconcile.Spec{Adapter: NewFieldsAdapter(), Collection: "stories"}
	plan, err = reconcile.ReconcileWithPlan(ctx, spec, store, reconcile.ReconcileOptions{})
	require.NoError(t, err)
	assert.Empty(t, plan.Actions)
}
