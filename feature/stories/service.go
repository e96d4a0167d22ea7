package stories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"story-pipeline/core/counter"
	"story-pipeline/core/docstore"
	"story-pipeline/core/events"
	"story-pipeline/core/idempotency"
	"story-pipeline/core/metrics"
	"story-pipeline/core/push"
	"story-pipeline/core/reconcile"
	"story-pipeline/core/storage"
	"story-pipeline/core/tracing"
	storiesReconcile "story-pipeline/feature/stories/reconcile"

	"github.com/minio/minio-go/v7"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Event sources, used as the metrics source label.
const (
	SourceWebhook  = "webhook"
	SourceListener = "listener"
	SourceWatch    = "watch"
	SourceCLI      = "cli"
)

// Event kinds.
const (
	KindObject  = "object"
	KindCreated = "created"
	KindUpdated = "updated"
)

var tracer = otel.Tracer("story-pipeline/feature/stories")

// Deps are the collaborators of the story service.
type Deps struct {
	Store     docstore.Store
	Storage   storage.Client
	Gateway   push.Gateway
	Claims    idempotency.Store
	Allocator *counter.Allocator
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	Bucket        string
	PublicBaseURL string
	Topic         string
	// ClaimTTL is how long a handled delivery is remembered.
	ClaimTTL time.Duration
	// AuditCacheTTL lets repeated audits reuse one collection scan.
	AuditCacheTTL time.Duration
}

// Service routes pipeline events to the ingestor and the record reactors,
// suppressing redeliveries and recording metrics and spans for each.
type Service struct {
	store    docstore.Store
	storage  storage.Client
	bucket   string
	claims   idempotency.Store
	claimTTL time.Duration
	cfg      Config
	auditTTL time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger

	ingestor *Ingestor
	triggers *Triggers
	notifier *Notifier
}

// NewService wires the story components.
func NewService(cfg Config, deps Deps) *Service {
	cfg = cfg.withDefaults()
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Claims == nil {
		deps.Claims = idempotency.NewMemory()
	}
	if deps.Allocator == nil {
		deps.Allocator = counter.New(deps.Store, counter.Config{})
	}
	if deps.Gateway == nil {
		deps.Gateway = push.NewLogGateway(deps.Logger)
	}

	notifier := NewNotifier(deps.Store, deps.Gateway, deps.Topic, cfg.Collection, deps.Metrics, deps.Logger)
	return &Service{
		store:    deps.Store,
		storage:  deps.Storage,
		bucket:   deps.Bucket,
		claims:   deps.Claims,
		claimTTL: deps.ClaimTTL,
		cfg:      cfg,
		auditTTL: deps.AuditCacheTTL,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		notifier: notifier,
		ingestor: NewIngestor(deps.Store, deps.Allocator, notifier, cfg, deps.PublicBaseURL, deps.Metrics, deps.Logger),
		triggers: NewTriggers(deps.Store, deps.Allocator, notifier, cfg, deps.Metrics, deps.Logger),
	}
}

// Config returns the effective pipeline settings.
func (s *Service) Config() Config {
	return s.cfg
}

// HandleObject ingests one finalized upload. Deliveries already handled
// within the claim TTL return OutcomeDuplicate without touching the store.
func (s *Service) HandleObject(ctx context.Context, source string, ev events.ObjectFinalized) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}
	if ev.Bucket == "" {
		ev.Bucket = s.bucket
	}
	return s.observe(ctx, source, KindObject, ev.Key(), func(ctx context.Context) (Outcome, error) {
		return s.ingestor.Handle(ctx, ev)
	}, attribute.String("object.name", ev.Name))
}

// HandleCreated runs the creation reactor. A record is created once, so its
// id is the redelivery key.
func (s *Service) HandleCreated(ctx context.Context, source string, ev events.DocumentCreated) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}
	return s.observe(ctx, source, KindCreated, "created:"+s.cfg.Collection+"/"+ev.RecordID, func(ctx context.Context) (Outcome, error) {
		return s.triggers.OnCreate(ctx, ev)
	}, attribute.String("story.id", ev.RecordID))
}

// HandleUpdated runs the update reactor. Updates carry no stable delivery id;
// the reactor itself is safe to repeat.
func (s *Service) HandleUpdated(ctx context.Context, source string, ev events.DocumentUpdated) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}
	return s.observe(ctx, source, KindUpdated, "", func(ctx context.Context) (Outcome, error) {
		return s.triggers.OnUpdate(ctx, ev)
	}, attribute.String("story.id", ev.RecordID))
}

func (s *Service) observe(ctx context.Context, source, kind, key string, fn func(ctx context.Context) (Outcome, error), attrs ...attribute.KeyValue) (out Outcome, err error) {
	attrs = append(attrs, attribute.String("event.source", source))
	ctx, span := tracer.Start(ctx, "stories."+kind, trace.WithAttributes(attrs...))
	start := time.Now()
	defer func() {
		label := string(out)
		if err != nil {
			label = "error"
			if errors.Is(err, docstore.ErrTransactionAborted) {
				s.metrics.TransactionAborts.Inc()
			}
		}
		span.SetAttributes(attribute.String("event.outcome", label))
		s.metrics.Events.WithLabelValues(source, kind, label).Inc()
		s.metrics.EventDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		tracing.End(span, err)
	}()

	if key != "" {
		claimed, cerr := s.claims.Claim(ctx, key, s.claimTTL)
		switch {
		case cerr != nil:
			// Handlers are idempotent; losing suppression only costs duplicate work.
			s.logger.Warn("Failed to claim event, handling anyway", zap.String("key", key), zap.Error(cerr))
		case !claimed:
			s.logger.Debug("Skipping redelivered event", zap.String("key", key))
			return OutcomeDuplicate, nil
		}
	}

	out, err = fn(ctx)
	if err != nil && key != "" {
		if rerr := s.claims.Release(context.WithoutCancel(ctx), key); rerr != nil {
			s.logger.Warn("Failed to release event claim", zap.String("key", key), zap.Error(rerr))
		}
	}
	return out, err
}

// Replay ingests an existing object as if its upload had just finished.
// The content type is read from the object when not given.
func (s *Service) Replay(ctx context.Context, name, contentType string) (Outcome, error) {
	ev := events.ObjectFinalized{Bucket: s.bucket, Name: name, ContentType: contentType}
	if err := ev.Validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(contentType) == "" {
		info, err := s.storage.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", name, err)
		}
		ev.ContentType = info.ContentType
		ev.ETag = info.ETag
		ev.Size = info.Size
	}
	return s.observe(ctx, SourceCLI, KindObject, "", func(ctx context.Context) (Outcome, error) {
		return s.ingestor.Handle(ctx, ev)
	}, attribute.String("object.name", name))
}

// Rescan replays every object under the root token and returns the outcome
// counts. It stops at the first failing object.
func (s *Service) Rescan(ctx context.Context) (map[Outcome]int, error) {
	counts := map[Outcome]int{}
	opts := minio.ListObjectsOptions{Prefix: s.cfg.RootToken + "/", Recursive: true}
	for obj := range s.storage.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return counts, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		out, err := s.Replay(ctx, obj.Key, "")
		if err != nil {
			return counts, err
		}
		counts[out]++
	}
	return counts, nil
}

func (s *Service) shareIDSpec() *reconcile.Spec {
	return &reconcile.Spec{
		Adapter:    storiesReconcile.NewShareIDAdapter(),
		Collection: s.cfg.Collection,
		CacheTTL:   s.auditTTL,
	}
}

// AuditShareID returns the audit result of one record, or nil when the
// collection holds no record with that id. Duplicates are judged against the
// whole collection.
func (s *Service) AuditShareID(ctx context.Context, id string) (*reconcile.ReconcileResult, error) {
	ctx, span := tracer.Start(ctx, "stories.audit_one")
	res, err := reconcile.ReconcileOne(ctx, s.shareIDSpec(), s.store, id, reconcile.ReconcileOptions{DryRun: true})
	tracing.End(span, err)
	if err != nil {
		return nil, fmt.Errorf("failed to audit share id of %s: %w", id, err)
	}
	return res, nil
}

// AuditShareIDs plans the share id repair without writing and publishes the
// totals as gauges.
func (s *Service) AuditShareIDs(ctx context.Context) (*reconcile.ReconcilePlan, error) {
	ctx, span := tracer.Start(ctx, "stories.audit")
	plan, err := reconcile.ReconcileWithPlan(ctx, s.shareIDSpec(), s.store, reconcile.ReconcileOptions{DryRun: true})
	tracing.End(span, err)
	if err != nil {
		return nil, fmt.Errorf("failed to audit share ids: %w", err)
	}

	s.metrics.AuditFindings.WithLabelValues("total").Set(float64(plan.Summary.TotalItems))
	s.metrics.AuditFindings.WithLabelValues("missing").Set(float64(plan.Summary.Counts[storiesReconcile.CountMissing]))
	s.metrics.AuditFindings.WithLabelValues("duplicate").Set(float64(plan.Summary.Counts[storiesReconcile.CountDuplicates]))
	return plan, nil
}
