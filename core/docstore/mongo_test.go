package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestFromMongo(t *testing.T) {
	created := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	raw := bson.M{
		"_id":                "forest-01",
		mongoVersionField:    int64(3),
		mongoCreateTimeField: primitive.NewDateTimeFromTime(created),
		"title":              "Forest",
		"shareId":            int32(17),
		"createdAt":          primitive.NewDateTimeFromTime(created),
		"mediaSegments": bson.A{
			bson.M{"type": "audio", "url": "https://cdn/a.mp3"},
		},
	}

	rec := fromMongo(raw)
	assert.Equal(t, int64(3), rec.version)
	assert.True(t, rec.createTime.Equal(created))
	assert.NotContains(t, rec.data, "_id")
	assert.NotContains(t, rec.data, mongoVersionField)
	assert.Equal(t, int64(17), rec.data["shareId"])
	assert.Equal(t, created, rec.data["createdAt"])
	assert.Equal(t, []any{map[string]any{"type": "audio", "url": "https://cdn/a.mp3"}}, rec.data["mediaSegments"])
}

func TestFromMongo_Unversioned(t *testing.T) {
	rec := fromMongo(bson.M{"_id": "legacy", "title": "Old"})
	assert.Equal(t, int64(1), rec.version)

	filter := versionFilter("legacy", 1)
	assert.Contains(t, filter, "$or")
	assert.Equal(t, bson.M{"_id": "x", mongoVersionField: int64(4)}, versionFilter("x", 4))
}

func TestToMongo(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	doc := toMongo("forest-01", record{
		data:       map[string]any{"title": "Forest"},
		version:    2,
		createTime: now,
		updateTime: now,
	})
	assert.Equal(t, "forest-01", doc["_id"])
	assert.Equal(t, int64(2), doc[mongoVersionField])
	assert.Equal(t, "Forest", doc["title"])
}

func TestChangeEvent(t *testing.T) {
	insert := changeEvent{OperationType: "insert", FullDocument: bson.M{"_id": "a", "title": "A"}}
	insert.DocumentKey.ID = "a"
	c, ok := insert.change("stories")
	assert.True(t, ok)
	assert.Equal(t, ChangeCreated, c.Type)
	assert.Nil(t, c.Before)
	assert.Equal(t, "A", c.After.Field("title"))

	update := changeEvent{
		OperationType:            "replace",
		FullDocument:             bson.M{"_id": "a", "audioUrl": "x"},
		FullDocumentBeforeChange: bson.M{"_id": "a"},
	}
	update.DocumentKey.ID = "a"
	c, ok = update.change("stories")
	assert.True(t, ok)
	assert.Equal(t, ChangeUpdated, c.Type)
	assert.NotNil(t, c.Before)
	assert.Equal(t, Doc("stories", "a"), c.Ref)

	_, ok = changeEvent{OperationType: "update"}.change("stories")
	assert.False(t, ok)
}
