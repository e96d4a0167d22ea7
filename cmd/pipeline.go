package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"story-pipeline/core/config"
	"story-pipeline/core/counter"
	"story-pipeline/core/docstore"
	"story-pipeline/core/idempotency"
	"story-pipeline/core/metrics"
	"story-pipeline/core/push"
	"story-pipeline/core/storage"
	"story-pipeline/feature/stories"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// newClaimStore builds the event claim store. Tests swap it.
var newClaimStore = idempotency.New

// pipeline holds the shared backends every command builds the stories feature from.
type pipeline struct {
	store   docstore.Store
	storage storage.Client
	claims  idempotency.Store
	feature *stories.Feature
}

// openPipeline connects the document store, object storage, claim store and
// push gateway and wires the stories feature over them. A nil registerer
// keeps metrics unregistered, which is what one-shot commands want.
// Whatever was opened before a failure is closed again.
func openPipeline(ctx context.Context, cfg *config.Config, logg *zap.Logger, reg prometheus.Registerer) (*pipeline, error) {
	if !cfg.Pipeline.IsValidSegmentPolicy() {
		return nil, fmt.Errorf("invalid pipeline.audio_segments %q: want %s or %s",
			cfg.Pipeline.AudioSegments, stories.SegmentsAppend, stories.SegmentsReplace)
	}

	store, err := docstore.Open(ctx, cfg.DocStore, cfg.Database, cfg.Mongo, logg)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}
	p := &pipeline{store: store}

	p.storage, err = storage.NewClient(cfg.Storage)
	if err != nil {
		_ = p.Close(ctx)
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	p.claims, err = newClaimStore(ctx, cfg.Redis)
	if err != nil {
		_ = p.Close(ctx)
		return nil, fmt.Errorf("failed to create claim store: %w", err)
	}

	gateway, err := push.New(ctx, cfg.Push, logg)
	if err != nil {
		_ = p.Close(ctx)
		return nil, fmt.Errorf("failed to create push gateway: %w", err)
	}

	m := metrics.Nop()
	if reg != nil {
		m = metrics.New(reg)
	}

	p.feature = stories.NewFeature(cfg.Pipeline, stories.Deps{
		Store:         store,
		Storage:       p.storage,
		Gateway:       gateway,
		Claims:        p.claims,
		Allocator:     counter.New(store, cfg.Counter),
		Metrics:       m,
		Logger:        logg,
		Bucket:        cfg.Storage.Bucket,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		Topic:         cfg.Push.Topic,
		ClaimTTL:      cfg.Redis.TTL(),
		AuditCacheTTL: cfg.Reconcile.CacheTTL(),
	})
	return p, nil
}

// Close releases the claim store, when it holds a connection, and the document store.
func (p *pipeline) Close(ctx context.Context) error {
	var errs []error
	if c, ok := p.claims.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, p.store.Close(ctx))
	return errors.Join(errs...)
}
