package stories

import (
	"strings"

	"story-pipeline/core/utils"
	"story-pipeline/feature/stories/models"
)

var playableTypes = map[string]struct{}{
	"audio":     {},
	"mp3":       {},
	"narration": {},
}

// Playable reports whether a record has consumable audio: a direct audioUrl
// or an audio-like media segment with a url.
func Playable(data map[string]any) bool {
	if data == nil {
		return false
	}
	if strings.TrimSpace(utils.ToString(data[models.FieldAudioURL])) != "" {
		return true
	}
	for _, seg := range models.Segments(data) {
		if _, ok := playableTypes[strings.ToLower(strings.TrimSpace(seg.Type))]; !ok {
			continue
		}
		if strings.TrimSpace(seg.URL) != "" {
			return true
		}
	}
	return false
}
