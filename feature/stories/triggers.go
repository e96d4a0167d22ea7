package stories

import (
	"context"
	"fmt"

	"story-pipeline/core/counter"
	"story-pipeline/core/docstore"
	"story-pipeline/core/events"
	"story-pipeline/core/metrics"
	"story-pipeline/core/utils"
	"story-pipeline/feature/stories/models"

	"go.uber.org/zap"
)

// Triggers react to record creation and updates.
type Triggers struct {
	store     docstore.Store
	allocator *counter.Allocator
	notifier  *Notifier
	cfg       Config
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewTriggers creates the record reactors.
func NewTriggers(store docstore.Store, allocator *counter.Allocator, notifier *Notifier, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Triggers {
	if m == nil {
		m = metrics.Nop()
	}
	return &Triggers{
		store:     store,
		allocator: allocator,
		notifier:  notifier,
		cfg:       cfg.withDefaults(),
		metrics:   m,
		logger:    logger,
	}
}

// OnCreate completes a new record (timestamps and share id, when missing)
// and announces it if it is already playable.
func (t *Triggers) OnCreate(ctx context.Context, ev events.DocumentCreated) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}
	if err := t.autofill(ctx, ev.RecordID); err != nil {
		return "", err
	}

	if models.IsNotified(ev.After) || !Playable(ev.After) {
		return OutcomeUpdated, nil
	}
	if _, err := t.notifier.NotifyOnce(ctx, ev.RecordID, models.DisplayTitle(ev.RecordID, ev.After)); err != nil {
		t.logger.Error("Failed to notify", zap.String("story_id", ev.RecordID), zap.Error(err))
	}
	return OutcomeUpdated, nil
}

// OnUpdate announces a record on its transition from not playable to
// playable. A missing before image counts as not playable; the notifiedAt
// claim keeps that to one push per record.
func (t *Triggers) OnUpdate(ctx context.Context, ev events.DocumentUpdated) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}
	if models.IsNotified(ev.After) {
		return OutcomeUpdated, nil
	}
	if Playable(ev.Before) || !Playable(ev.After) {
		return OutcomeUpdated, nil
	}
	if _, err := t.notifier.NotifyOnce(ctx, ev.RecordID, models.DisplayTitle(ev.RecordID, ev.After)); err != nil {
		t.logger.Error("Failed to notify", zap.String("story_id", ev.RecordID), zap.Error(err))
	}
	return OutcomeUpdated, nil
}

// autofill stamps missing createdAt and updatedAt and allocates a share id in
// one transaction. Records already complete are not written, so the write
// does not feed back into another update event.
func (t *Triggers) autofill(ctx context.Context, id string) error {
	ref := docstore.Doc(t.cfg.Collection, id)
	var allocated int64
	err := t.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		allocated = 0
		snap, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		if !snap.Exists {
			return nil
		}

		patch := docstore.Patch{}
		if utils.IsBlank(snap.Field(models.FieldCreatedAt)) {
			patch[models.FieldCreatedAt] = docstore.ServerTimestamp
		}
		if utils.IsBlank(snap.Field(models.FieldUpdatedAt)) {
			patch[models.FieldUpdatedAt] = docstore.ServerTimestamp
		}
		if utils.IsBlank(snap.Field(models.FieldShareID)) {
			n, err := t.allocator.Allocate(ctx, tx, t.cfg.ShareIDCounter)
			if err != nil {
				return err
			}
			patch[models.FieldShareID] = n
			allocated = n
		}
		if len(patch) == 0 {
			return nil
		}
		return tx.Update(ref, patch)
	})
	if err != nil {
		return fmt.Errorf("failed to complete record %s: %w", id, err)
	}
	if allocated > 0 {
		t.metrics.ShareIDsAllocated.Inc()
		t.logger.Info("Share id assigned", zap.String("story_id", id), zap.Int64("share_id", allocated))
	}
	return nil
}
