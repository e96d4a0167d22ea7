package reconcile

import (
	"context"

	"story-pipeline/core/docstore"
	"story-pipeline/core/reconcile"
	"story-pipeline/core/utils"
	"story-pipeline/feature/stories/models"
)

// FieldsAdapter backfills createdAt from the store's create time and title
// from the record id.
type FieldsAdapter struct{}

// NewFieldsAdapter creates the adapter.
func NewFieldsAdapter() *FieldsAdapter {
	return &FieldsAdapter{}
}

// Name returns the adapter name.
func (a *FieldsAdapter) Name() string {
	return "fields"
}

// Audit flags records missing createdAt or title.
func (a *FieldsAdapter) Audit(ctx context.Context, records []*docstore.Snapshot, opts reconcile.ReconcileOptions) ([]reconcile.ReconcileResult, map[string]int, error) {
	counts := map[string]int{CountMissingCreatedAt: 0, CountMissingTitle: 0}
	results := make([]reconcile.ReconcileResult, 0, len(records))
	for _, r := range records {
		res := reconcile.ReconcileResult{ID: r.Ref.ID, Name: models.DisplayTitle(r.Ref.ID, r.Data)}
		if utils.IsBlank(r.Field(models.FieldCreatedAt)) {
			counts[CountMissingCreatedAt]++
			res.Issues = append(res.Issues, IssueMissingCreatedAt)
		}
		if utils.IsBlank(r.Field(models.FieldTitle)) {
			counts[CountMissingTitle]++
			res.Issues = append(res.Issues, IssueMissingTitle)
		}
		results = append(results, res)
	}
	return results, counts, nil
}

// PlanActions returns one patch per incomplete record.
func (a *FieldsAdapter) PlanActions(ctx context.Context, records []*docstore.Snapshot, results []reconcile.ReconcileResult, opts reconcile.ReconcileOptions) ([]reconcile.Action, error) {
	var actions []reconcile.Action
	for _, r := range records {
		patch := docstore.Patch{}
		if utils.IsBlank(r.Field(models.FieldCreatedAt)) {
			if r.CreateTime.IsZero() {
				patch[models.FieldCreatedAt] = docstore.ServerTimestamp
			} else {
				patch[models.FieldCreatedAt] = r.CreateTime
			}
		}
		if utils.IsBlank(r.Field(models.FieldTitle)) {
			patch[models.FieldTitle] = models.TitleFromID(r.Ref.ID)
		}
		if len(patch) == 0 {
			continue
		}
		actions = append(actions, reconcile.Action{
			Type:   reconcile.ActionPatch,
			Key:    r.Ref.ID,
			Reason: "backfill",
			Patch:  patch,
		})
	}
	return actions, nil
}
