package stories

import (
	"context"
	"fmt"

	"story-pipeline/core/docstore"
	"story-pipeline/core/metrics"
	"story-pipeline/core/push"
	"story-pipeline/feature/stories/models"

	"go.uber.org/zap"
)

// Notification texts and routing data.
const (
	NotificationTitle = "New bedtime story added 🌙"
	NotificationRoute = "whats_new"
)

// Notifier announces newly playable stories.
type Notifier struct {
	store      docstore.Store
	gateway    push.Gateway
	topic      string
	collection string
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewNotifier creates a notifier broadcasting to topic.
func NewNotifier(store docstore.Store, gateway push.Gateway, topic, collection string, m *metrics.Metrics, logger *zap.Logger) *Notifier {
	if topic == "" {
		topic = "new_stories"
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Notifier{
		store:      store,
		gateway:    gateway,
		topic:      topic,
		collection: collection,
		metrics:    m,
		logger:     logger,
	}
}

// Message builds the broadcast for a story.
func (n *Notifier) Message(id, title string) push.Message {
	return push.Message{
		Topic: n.topic,
		Title: NotificationTitle,
		Body:  title + " is now available.",
		Data: map[string]string{
			"storyId": id,
			"route":   NotificationRoute,
		},
	}
}

// Send pushes one notification. Failures are logged and never returned.
func (n *Notifier) Send(ctx context.Context, id, title string) {
	msgID, err := n.gateway.Send(ctx, n.Message(id, title))
	if err != nil {
		n.metrics.Notifications.WithLabelValues("failed").Inc()
		n.logger.Warn("Failed to send notification",
			zap.String("story_id", id),
			zap.String("topic", n.topic),
			zap.Error(err),
		)
		return
	}
	n.metrics.Notifications.WithLabelValues("sent").Inc()
	n.logger.Info("Notification sent",
		zap.String("story_id", id),
		zap.String("topic", n.topic),
		zap.String("message_id", msgID),
	)
}

// NotifyOnce claims the record by stamping notifiedAt in a transaction that
// first checks it is unset, then sends. Only the caller that wins the claim
// sends, so concurrent deliveries produce at most one push. sent is false
// when the record is missing or was already claimed.
func (n *Notifier) NotifyOnce(ctx context.Context, id, title string) (sent bool, err error) {
	ref := docstore.Doc(n.collection, id)
	claimed := false
	err = n.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		claimed = false
		snap, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		if !snap.Exists || models.IsNotified(snap.Data) {
			return nil
		}
		if err := tx.Update(ref, docstore.Patch{models.FieldNotifiedAt: docstore.ServerTimestamp}); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to claim notification for %s: %w", id, err)
	}
	if !claimed {
		n.metrics.Notifications.WithLabelValues("claimed_elsewhere").Inc()
		n.logger.Debug("Notification already claimed", zap.String("story_id", id))
		return false, nil
	}
	// The claim is committed; a cancelled caller must not drop the push.
	n.Send(context.WithoutCancel(ctx), id, title)
	return true, nil
}
