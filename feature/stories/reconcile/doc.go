// Package reconcile holds the story adapters for the core reconcile engine.
//
// The shareids adapter finds records without a share id or sharing one with
// an older record and plans the smallest free integers for them. The fields
// adapter backfills createdAt and title. Both only plan; writes happen through
// reconcile.ApplyPlan in atomic batches.
package reconcile
