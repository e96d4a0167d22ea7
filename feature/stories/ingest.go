package stories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"story-pipeline/core/counter"
	"story-pipeline/core/docstore"
	"story-pipeline/core/events"
	"story-pipeline/core/metrics"
	"story-pipeline/core/utils"
	"story-pipeline/feature/stories/models"

	"go.uber.org/zap"
)

// Outcome describes what handling an event did.
type Outcome string

const (
	// OutcomeSkipped is returned for keys outside the layout or without a content type.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeIgnored is returned for media types that are neither image nor audio.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeCover is returned after an image became the record's cover.
	OutcomeCover Outcome = "cover_saved"
	// OutcomeAudio is returned after an audio segment was recorded.
	OutcomeAudio Outcome = "audio_saved"
	// OutcomeDuplicate is returned for a delivery that was already handled.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeUpdated is returned by the document reactors after a pass.
	OutcomeUpdated Outcome = "processed"
)

// Ingestor turns finalized uploads into story records.
type Ingestor struct {
	store         docstore.Store
	allocator     *counter.Allocator
	notifier      *Notifier
	cfg           Config
	publicBaseURL string
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewIngestor creates an ingestor.
func NewIngestor(store docstore.Store, allocator *counter.Allocator, notifier *Notifier, cfg Config, publicBaseURL string, m *metrics.Metrics, logger *zap.Logger) *Ingestor {
	if m == nil {
		m = metrics.Nop()
	}
	return &Ingestor{
		store:         store,
		allocator:     allocator,
		notifier:      notifier,
		cfg:           cfg.withDefaults(),
		publicBaseURL: publicBaseURL,
		metrics:       m,
		logger:        logger,
	}
}

type ingestResult struct {
	outcome     Outcome
	title       string
	wasPlayable bool
	isPlayable  bool
	notified    bool
	shareID     int64
}

// Handle upserts the record addressed by the object key. The read, the merge
// and any share id allocation commit in one transaction, so replays converge
// on the same record. A record that becomes playable is announced once after
// the commit.
func (i *Ingestor) Handle(ctx context.Context, ev events.ObjectFinalized) (Outcome, error) {
	path, ok := ParseObjectKey(ev.Name, i.cfg.RootToken)
	contentType := strings.ToLower(strings.TrimSpace(ev.ContentType))
	if !ok || contentType == "" {
		i.logger.Debug("Skipping object",
			zap.String("name", ev.Name),
			zap.String("content_type", ev.ContentType),
		)
		return OutcomeSkipped, nil
	}

	var kind Outcome
	switch {
	case strings.HasPrefix(contentType, "image/"):
		kind = OutcomeCover
	case strings.HasPrefix(contentType, "audio/"):
		kind = OutcomeAudio
	default:
		i.logger.Debug("Ignoring unsupported media type",
			zap.String("name", ev.Name),
			zap.String("content_type", contentType),
		)
		return OutcomeIgnored, nil
	}

	url := ObjectURL(ev.Bucket, ev.Name, i.publicBaseURL)
	ref := docstore.Doc(i.cfg.Collection, path.Slug)

	var res ingestResult
	err := i.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		res = ingestResult{outcome: kind}

		snap, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		res.wasPlayable = snap.Exists && Playable(snap.Data)
		res.notified = snap.Exists && models.IsNotified(snap.Data)

		patch := docstore.Patch{
			models.FieldTitle:     path.Title(),
			models.FieldLanguage:  path.Language,
			models.FieldCategory:  path.Category,
			models.FieldUpdatedAt: docstore.ServerTimestamp,
		}
		if !snap.Exists {
			patch[models.FieldCreatedAt] = docstore.ServerTimestamp
			patch[models.FieldLikes] = 0
			patch[models.FieldDislikes] = 0
			patch[models.FieldViews] = 0
			patch[models.FieldIsPremium] = false
		}

		switch kind {
		case OutcomeCover:
			patch[models.FieldCoverURL] = url
		case OutcomeAudio:
			seg := models.MediaSegment{Type: models.SegmentTypeAudio, URL: url}.Value()
			if i.cfg.AudioSegments == SegmentsReplace {
				patch[models.FieldMediaSegments] = []any{seg}
			} else {
				patch[models.FieldMediaSegments] = docstore.ArrayUnion(seg)
			}
		}

		if utils.IsBlank(snap.Field(models.FieldShareID)) {
			n, err := i.allocator.Allocate(ctx, tx, i.cfg.ShareIDCounter)
			if err != nil {
				return err
			}
			patch[models.FieldShareID] = n
			res.shareID = n
		}

		if err := tx.Set(ref, patch, docstore.MergeAll); err != nil {
			return err
		}

		after := docstore.ApplyPatch(snap.Data, patch, true, time.Now())
		res.isPlayable = Playable(after)
		res.title = models.DisplayTitle(path.Slug, after)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to ingest %s: %w", ev.Name, err)
	}

	if res.shareID > 0 {
		i.metrics.ShareIDsAllocated.Inc()
	}
	i.logger.Info("Object ingested",
		zap.String("name", ev.Name),
		zap.String("story_id", path.Slug),
		zap.String("outcome", string(res.outcome)),
		zap.Int64("share_id", res.shareID),
	)

	if res.outcome == OutcomeAudio && !res.wasPlayable && res.isPlayable && !res.notified {
		// The record is committed; a failed claim must not fail the event.
		if _, err := i.notifier.NotifyOnce(ctx, path.Slug, res.title); err != nil {
			i.logger.Error("Failed to notify", zap.String("story_id", path.Slug), zap.Error(err))
		}
	}
	return res.outcome, nil
}
