package stories

import (
	"context"
	"testing"
	"time"

	"story-pipeline/core/docstore"
	"story-pipeline/core/storage/mocks"
	"story-pipeline/feature/stories/models"

	"github.com/minio/minio-go/v7/pkg/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestListener_ListenObjects(t *testing.T) {
	f := newFixture(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ev notification.Event
	ev.EventName = "s3:ObjectCreated:Put"
	ev.S3.Bucket.Name = "media"
	ev.S3.Object.Key = "stories/en/adventure/forest-01/track1.mp3"
	ev.S3.Object.ContentType = "audio/mpeg"

	feed := func() <-chan notification.Info {
		ch := make(chan notification.Info, 2)
		ch <- notification.Info{Records: []notification.Event{ev}}
		ch <- notification.Info{Records: []notification.Event{ev}}
		close(ch)
		return ch
	}
	client := new(mocks.Client)
	client.On("ListenBucketNotification", mock.Anything, "media", "stories/", "", []string{"s3:ObjectCreated:*"}).
		Return(feed()).Once()
	client.On("ListenBucketNotification", mock.Anything, "media", "stories/", "", mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil)

	reconnectDelay = 10 * time.Millisecond
	l := NewListener(f.service, client, "media", zap.NewNop())
	done := make(chan struct{})
	go func() {
		l.ListenObjects(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}

	assert.True(t, f.record(t, "forest-01").Exists)
	assert.Len(t, f.gateway.messages(), 1, "the duplicate delivery is suppressed")
}

func TestListener_WatchRecords(t *testing.T) {
	f := newFixture(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewListener(f.service, nil, "media", zap.NewNop())
	go func() { _ = l.WatchRecords(ctx, f.store) }()
	time.Sleep(20 * time.Millisecond)

	ref := docstore.Doc("stories", "owl")
	require.NoError(t, f.store.Set(ctx, ref, docstore.Patch{models.FieldTitle: "Sleepy Owl"}))
	require.NoError(t, f.store.Set(ctx, ref, docstore.Patch{models.FieldAudioURL: "https://cdn/owl.mp3"}, docstore.MergeAll))

	assert.Eventually(t, func() bool {
		rec := f.record(t, "owl")
		return rec.Field(models.FieldShareID) != nil && models.IsNotified(rec.Data)
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, f.gateway.messages(), 1)
}
