package stories

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"story-pipeline/core/docstore"
	"story-pipeline/core/events"
	"story-pipeline/core/utils"
	"story-pipeline/feature/stories/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func audioEvent(name string) events.ObjectFinalized {
	return events.ObjectFinalized{Bucket: "media", Name: name, ContentType: "audio/mpeg", ETag: "e1"}
}

func TestIngest_AudioUploadCreatesRecordAndNotifiesOnce(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	out, err := f.service.ingestor.Handle(ctx, audioEvent("stories/en/adventure/forest-01/track1.mp3"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAudio, out)

	rec := f.record(t, "forest-01")
	require.True(t, rec.Exists)
	assert.Equal(t, "en", rec.Field(models.FieldLanguage))
	assert.Equal(t, "adventure", rec.Field(models.FieldCategory))
	assert.Equal(t, "Forest 01", rec.Field(models.FieldTitle))
	assert.Equal(t, []models.MediaSegment{
		{Type: "audio", URL: "s3://media/stories/en/adventure/forest-01/track1.mp3"},
	}, models.Segments(rec.Data))
	assert.Equal(t, int64(1), rec.Field(models.FieldShareID))
	assert.Equal(t, 0, rec.Field(models.FieldLikes))
	assert.Equal(t, false, rec.Field(models.FieldIsPremium))
	assert.True(t, models.IsNotified(rec.Data))

	msgs := f.gateway.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "new_stories", msgs[0].Topic)
	assert.Equal(t, NotificationTitle, msgs[0].Title)
	assert.Equal(t, "Forest 01 is now available.", msgs[0].Body)
	assert.Equal(t, map[string]string{"storyId": "forest-01", "route": "whats_new"}, msgs[0].Data)
}

func TestIngest_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	ev := audioEvent("stories/en/adventure/forest-01/track1.mp3")

	_, err := f.service.ingestor.Handle(ctx, ev)
	require.NoError(t, err)
	first := f.record(t, "forest-01")

	_, err = f.service.ingestor.Handle(ctx, ev)
	require.NoError(t, err)
	second := f.record(t, "forest-01")

	assert.Equal(t, first.Field(models.FieldCreatedAt), second.Field(models.FieldCreatedAt))
	assert.Equal(t, first.Field(models.FieldShareID), second.Field(models.FieldShareID))
	assert.Equal(t, models.Segments(first.Data), models.Segments(second.Data))
	assert.Len(t, f.gateway.messages(), 1)
}

func TestIngest_SegmentPolicies(t *testing.T) {
	keys := []string{
		"stories/en/adventure/forest-01/part1.mp3",
		"stories/en/adventure/forest-01/part2.mp3",
	}

	t.Run("Append", func(t *testing.T) {
		f := newFixture(t, Config{AudioSegments: SegmentsAppend})
		for _, k := range keys {
			_, err := f.service.ingestor.Handle(context.Background(), audioEvent(k))
			require.NoError(t, err)
		}
		segs := models.Segments(f.record(t, "forest-01").Data)
		require.Len(t, segs, 2)
		assert.Equal(t, "s3://media/"+keys[0], segs[0].URL)
		assert.Equal(t, "s3://media/"+keys[1], segs[1].URL)
	})

	t.Run("Replace", func(t *testing.T) {
		f := newFixture(t, Config{AudioSegments: SegmentsReplace})
		for _, k := range keys {
			_, err := f.service.ingestor.Handle(context.Background(), audioEvent(k))
			require.NoError(t, err)
		}
		segs := models.Segments(f.record(t, "forest-01").Data)
		require.Len(t, segs, 1)
		assert.Equal(t, "s3://media/"+keys[1], segs[0].URL)
		assert.Len(t, f.gateway.messages(), 1)
	})
}

func TestIngest_CoverThenAudio(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	out, err := f.service.ingestor.Handle(ctx, events.ObjectFinalized{
		Bucket: "media", Name: "stories/en/adventure/forest-01/cover.png", ContentType: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCover, out)
	assert.Equal(t, "s3://media/stories/en/adventure/forest-01/cover.png", f.record(t, "forest-01").Field(models.FieldCoverURL))
	assert.Empty(t, f.gateway.messages(), "a cover alone is not playable")

	_, err = f.service.ingestor.Handle(ctx, audioEvent("stories/en/adventure/forest-01/track1.mp3"))
	require.NoError(t, err)
	assert.Len(t, f.gateway.messages(), 1)

	rec := f.record(t, "forest-01")
	assert.Equal(t, int64(1), rec.Field(models.FieldShareID), "share id is allocated once")
}

func TestIngest_CountersSeededOnlyOnCreate(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.service.ingestor.Handle(ctx, audioEvent("stories/en/adventure/forest-01/track1.mp3"))
	require.NoError(t, err)

	require.NoError(t, f.store.Update(ctx, docstore.Doc("stories", "forest-01"), docstore.Patch{models.FieldLikes: 7}))
	_, err = f.service.ingestor.Handle(ctx, audioEvent("stories/en/adventure/forest-01/track2.mp3"))
	require.NoError(t, err)

	likes, _ := utils.ToInt64(f.record(t, "forest-01").Field(models.FieldLikes))
	assert.Equal(t, int64(7), likes)
}

func TestIngest_SkipsAndIgnores(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name string
		ev   events.ObjectFinalized
		want Outcome
	}{
		{name: "OutsideLayout", ev: events.ObjectFinalized{Name: "covers/a.png", ContentType: "image/png"}, want: OutcomeSkipped},
		{name: "NoContentType", ev: events.ObjectFinalized{Name: "stories/en/a/b/c.mp3"}, want: OutcomeSkipped},
		{name: "Video", ev: events.ObjectFinalized{Name: "stories/en/a/b/c.mp4", ContentType: "video/mp4"}, want: OutcomeIgnored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := f.service.ingestor.Handle(ctx, tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}

	snaps, err := f.store.List(ctx, "stories")
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestIngest_ConcurrentUploadsGetUniqueShareIDs(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	const n = 12
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.service.ingestor.Handle(ctx, audioEvent(fmt.Sprintf("stories/en/adventure/story-%02d/a.mp3", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snaps, err := f.store.List(ctx, "stories")
	require.NoError(t, err)
	require.Len(t, snaps, n)
	seen := map[int64]bool{}
	for _, s := range snaps {
		v, ok := utils.ToInt64(s.Field(models.FieldShareID))
		require.True(t, ok)
		assert.False(t, seen[v], "duplicate share id %d", v)
		seen[v] = true
	}
	for v := int64(1); v <= n; v++ {
		assert.True(t, seen[v], "missing share id %d", v)
	}
	assert.Len(t, f.gateway.messages(), n)
}
