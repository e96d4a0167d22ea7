package stories

import (
	"context"
	"errors"
	"time"

	"story-pipeline/core/docstore"
	"story-pipeline/core/events"
	"story-pipeline/core/storage"

	"go.uber.org/zap"
)

// reconnectDelay is the pause before a closed notification stream is reopened.
var reconnectDelay = 2 * time.Second

// Listener feeds in-process event sources into the service: bucket
// notifications from object storage and the record change feed.
type Listener struct {
	service *Service
	storage storage.Client
	bucket  string
	logger  *zap.Logger
}

// NewListener creates a listener for bucket.
func NewListener(service *Service, client storage.Client, bucket string, logger *zap.Logger) *Listener {
	return &Listener{service: service, storage: client, bucket: bucket, logger: logger}
}

// ListenObjects consumes object-created notifications until ctx is done,
// reopening the stream whenever the server closes it.
func (l *Listener) ListenObjects(ctx context.Context) {
	prefix := l.service.cfg.RootToken + "/"
	for ctx.Err() == nil {
		l.logger.Info("Listening for bucket notifications", zap.String("bucket", l.bucket), zap.String("prefix", prefix))
		for info := range l.storage.ListenBucketNotification(ctx, l.bucket, prefix, "", []string{"s3:ObjectCreated:*"}) {
			if info.Err != nil {
				l.logger.Warn("Bucket notification error", zap.Error(info.Err))
				continue
			}
			for _, rec := range info.Records {
				ev, ok, err := events.FromNotification(rec)
				if err != nil {
					l.logger.Debug("Dropping malformed notification", zap.Error(err))
					continue
				}
				if !ok {
					continue
				}
				l.deliver(ctx, KindObject, ev.Name, func(ctx context.Context) error {
					_, err := l.service.HandleObject(ctx, SourceListener, ev)
					return err
				})
			}
		}
		select {
		case <-ctx.Done():
		case <-time.After(reconnectDelay):
		}
	}
}

// WatchRecords consumes the record change feed until ctx is done.
func (l *Listener) WatchRecords(ctx context.Context, w docstore.Watcher) error {
	changes, err := w.Watch(ctx, l.service.cfg.Collection)
	if err != nil {
		return err
	}
	l.logger.Info("Watching records", zap.String("collection", l.service.cfg.Collection))
	for change := range changes {
		l.HandleChange(ctx, change)
	}
	return nil
}

// HandleChange dispatches one committed change to the matching reactor.
func (l *Listener) HandleChange(ctx context.Context, change docstore.Change) {
	id := change.Ref.ID
	switch change.Type {
	case docstore.ChangeCreated:
		ev := events.DocumentCreated{RecordID: id, After: change.After.Data}
		l.deliver(ctx, KindCreated, id, func(ctx context.Context) error {
			_, err := l.service.HandleCreated(ctx, SourceWatch, ev)
			return err
		})
	case docstore.ChangeUpdated:
		ev := events.DocumentUpdated{RecordID: id, After: change.After.Data}
		if change.Before != nil {
			ev.Before = change.Before.Data
		}
		l.deliver(ctx, KindUpdated, id, func(ctx context.Context) error {
			_, err := l.service.HandleUpdated(ctx, SourceWatch, ev)
			return err
		})
	}
}

// deliver runs fn up to MaxDeliveries times. Invalid events are not retried.
func (l *Listener) deliver(ctx context.Context, kind, subject string, fn func(ctx context.Context) error) {
	attempts := l.service.cfg.MaxDeliveries
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return
		}
		if errors.Is(err, events.ErrInvalidEvent) || ctx.Err() != nil {
			break
		}
		l.logger.Warn("Event failed, retrying",
			zap.String("kind", kind),
			zap.String("subject", subject),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	l.logger.Error("Giving up on event",
		zap.String("kind", kind),
		zap.String("subject", subject),
		zap.Error(err),
	)
}
