package models

import (
	"regexp"
	"strings"
	"unicode"

	"story-pipeline/core/utils"
)

// Field names of a story record.
const (
	FieldTitle            = "title"
	FieldLanguage         = "language"
	FieldCategory         = "category"
	FieldCoverURL         = "coverUrl"
	FieldAudioURL         = "audioUrl"
	FieldMediaSegments    = "mediaSegments"
	FieldShareID          = "shareId"
	FieldShareIDUpdatedAt = "shareIdUpdatedAt"
	FieldCreatedAt        = "createdAt"
	FieldUpdatedAt        = "updatedAt"
	FieldNotifiedAt       = "notifiedAt"
	FieldLikes            = "likes"
	FieldDislikes         = "dislikes"
	FieldViews            = "views"
	FieldIsPremium        = "isPremium"
)

// Segment keys.
const (
	SegmentType = "type"
	SegmentURL  = "url"
	// SegmentLegacyURL is the url key used by older records.
	SegmentLegacyURL = "audioUrl"
)

// SegmentTypeAudio is the type written for ingested audio objects.
const SegmentTypeAudio = "audio"

// MediaSegment is one entry of mediaSegments.
type MediaSegment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Value returns the stored shape of the segment.
func (s MediaSegment) Value() map[string]any {
	return map[string]any{SegmentType: s.Type, SegmentURL: s.URL}
}

// Segments decodes mediaSegments, skipping entries that are not objects.
func Segments(data map[string]any) []MediaSegment {
	raw, _ := data[FieldMediaSegments].([]any)
	out := make([]MediaSegment, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		url := utils.ToString(m[SegmentURL])
		if strings.TrimSpace(url) == "" {
			url = utils.ToString(m[SegmentLegacyURL])
		}
		out = append(out, MediaSegment{Type: utils.ToString(m[SegmentType]), URL: url})
	}
	return out
}

// DisplayTitle is the trimmed title, or one derived from the id.
func DisplayTitle(id string, data map[string]any) string {
	if t := strings.TrimSpace(utils.ToString(data[FieldTitle])); t != "" {
		return t
	}
	return TitleFromSlug(id)
}

// IsNotified reports whether the record already carries a notifiedAt tombstone.
func IsNotified(data map[string]any) bool {
	return !utils.IsBlank(data[FieldNotifiedAt])
}

// NormalizeShareID returns the trimmed string form of a share id, or "" when absent.
func NormalizeShareID(v any) string {
	if utils.IsBlank(v) {
		return ""
	}
	return strings.TrimSpace(utils.ToString(v))
}

var (
	separators     = regexp.MustCompile(`[-_]+`)
	languageSuffix = regexp.MustCompile(`-[a-zA-Z]{2,3}$`)
)

// TitleFromSlug turns "goodnight-moonberry-forest-001" into
// "Goodnight Moonberry Forest 001".
func TitleFromSlug(slug string) string {
	words := strings.Fields(separators.ReplaceAllString(slug, " "))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// TitleFromID is TitleFromSlug with a trailing language suffix ("-en") removed.
func TitleFromID(id string) string {
	return TitleFromSlug(languageSuffix.ReplaceAllString(id, ""))
}
