package stories

import (
	"strings"

	"story-pipeline/feature/stories/models"
)

// ObjectPath is a parsed "<root>/<language>/<category>/<slug>/<file...>" key.
type ObjectPath struct {
	Language string
	Category string
	Slug     string
	File     string
}

// ParseObjectKey parses an object key. ok is false for keys outside root or
// with fewer than five segments; that is a normal outcome, not an error.
func ParseObjectKey(key, root string) (ObjectPath, bool) {
	var parts []string
	for _, p := range strings.Split(key, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 5 || !strings.EqualFold(parts[0], root) {
		return ObjectPath{}, false
	}
	p := ObjectPath{
		Language: strings.ToLower(strings.TrimSpace(parts[1])),
		Category: strings.TrimSpace(parts[2]),
		Slug:     strings.TrimSpace(parts[3]),
		File:     strings.Join(parts[4:], "/"),
	}
	if p.Language == "" || p.Category == "" || p.Slug == "" || strings.TrimSpace(p.File) == "" {
		return ObjectPath{}, false
	}
	return p, true
}

// Title is the display title derived from the slug.
func (p ObjectPath) Title() string {
	return models.TitleFromSlug(p.Slug)
}

// ObjectURL addresses an object: <baseURL>/<name> when a public base is
// configured, s3://<bucket>/<name> otherwise.
func ObjectURL(bucket, name, baseURL string) string {
	if baseURL != "" {
		return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(name, "/")
	}
	return "s3://" + bucket + "/" + strings.TrimLeft(name, "/")
}
