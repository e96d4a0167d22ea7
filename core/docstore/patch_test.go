package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyPatch(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	existing := map[string]any{
		"title": "Old",
		"likes": 3,
		"segments": []any{
			map[string]any{"type": "audio", "url": "a"},
		},
	}

	t.Run("Merge preserves untouched fields", func(t *testing.T) {
		out := ApplyPatch(existing, Patch{"title": "New", "updatedAt": ServerTimestamp}, true, now)
		assert.Equal(t, "New", out["title"])
		assert.Equal(t, 3, out["likes"])
		assert.Equal(t, now, out["updatedAt"])
		assert.Equal(t, "Old", existing["title"], "input must not be modified")
	})

	t.Run("Replace drops other fields", func(t *testing.T) {
		out := ApplyPatch(existing, Patch{"title": "New"}, false, now)
		assert.Equal(t, map[string]any{"title": "New"}, out)
	})

	t.Run("ArrayUnion appends only new elements", func(t *testing.T) {
		patch := Patch{"segments": ArrayUnion(
			map[string]any{"type": "audio", "url": "a"},
			map[string]any{"type": "audio", "url": "b"},
		)}
		out := ApplyPatch(existing, patch, true, now)
		segs := out["segments"].([]any)
		assert.Len(t, segs, 2)
		assert.Equal(t, "b", segs[1].(map[string]any)["url"])

		again := ApplyPatch(out, patch, true, now)
		assert.Len(t, again["segments"].([]any), 2)
	})

	t.Run("ArrayUnion on missing field", func(t *testing.T) {
		out := ApplyPatch(nil, Patch{"tags": ArrayUnion("x", "x")}, true, now)
		assert.Equal(t, []any{"x"}, out["tags"])
	})
}

func TestDocRef_Validate(t *testing.T) {
	ref := Doc("stories", "forest-01")
	assert.NoError(t, ref.Validate())
	assert.Equal(t, "stories/forest-01", ref.Path())

	assert.ErrorIs(t, Doc("stories", " ").Validate(), ErrInvalidRef)
	assert.ErrorIs(t, Doc("", "forest-01").Validate(), ErrInvalidRef)
}
