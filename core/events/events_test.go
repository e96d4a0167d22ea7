package events

import (
	"encoding/json"
	"testing"

	"github.com/minio/minio-go/v7/pkg/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectFinalized_Validate(t *testing.T) {
	assert.NoError(t, ObjectFinalized{Name: "stories/en/a/b/c.mp3"}.Validate())
	assert.ErrorIs(t, ObjectFinalized{Name: "  "}.Validate(), ErrInvalidEvent)
}

func TestDocumentEvents_Validate(t *testing.T) {
	assert.NoError(t, DocumentCreated{RecordID: "a", After: map[string]any{}}.Validate())
	assert.ErrorIs(t, DocumentCreated{After: map[string]any{}}.Validate(), ErrInvalidEvent)
	assert.ErrorIs(t, DocumentCreated{RecordID: "a"}.Validate(), ErrInvalidEvent)

	assert.NoError(t, DocumentUpdated{RecordID: "a", After: map[string]any{}}.Validate())
	assert.ErrorIs(t, DocumentUpdated{RecordID: "a"}.Validate(), ErrInvalidEvent)
}

func TestFromNotification(t *testing.T) {
	var ev notification.Event
	ev.EventName = "s3:ObjectCreated:Put"
	ev.S3.Bucket.Name = "media"
	ev.S3.Object.Key = "stories%2Fen%2Fadventure%2Fforest-01%2Fnarration+1.mp3"
	ev.S3.Object.ContentType = "audio/mpeg"
	ev.S3.Object.ETag = "abc"
	ev.S3.Object.Size = 42

	out, ok, err := FromNotification(ev)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "stories/en/adventure/forest-01/narration 1.mp3", out.Name)
	assert.Equal(t, "media", out.Bucket)
	assert.Equal(t, "audio/mpeg", out.ContentType)
	assert.Equal(t, int64(42), out.Size)

	ev.EventName = "s3:ObjectRemoved:Delete"
	_, ok, err = FromNotification(ev)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNotificationPayload(t *testing.T) {
	body := `{
		"EventName": "s3:ObjectCreated:Put",
		"Key": "media/stories/en/adventure/forest-01/cover.jpg",
		"Records": [{
			"eventName": "s3:ObjectCreated:Put",
			"s3": {
				"bucket": {"name": "media"},
				"object": {"key": "stories/en/adventure/forest-01/cover.jpg", "contentType": "image/jpeg", "sequencer": "17A"}
			}
		}]
	}`
	var p NotificationPayload
	require.NoError(t, json.Unmarshal([]byte(body), &p))

	evs, err := p.ObjectEvents()
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "image/jpeg", evs[0].ContentType)
	assert.Equal(t, "17A", evs[0].Sequencer)
	assert.Equal(t, "object:media/stories/en/adventure/forest-01/cover.jpg##17A", evs[0].Key())
}
