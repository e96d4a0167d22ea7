package events

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7/pkg/notification"
)

// ErrInvalidEvent marks an event payload that is missing required fields.
// Such events are rejected and never retried.
var ErrInvalidEvent = errors.New("invalid event")

// ObjectFinalized is emitted once per completed upload.
type ObjectFinalized struct {
	Bucket      string `json:"bucket,omitempty"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	ETag        string `json:"etag,omitempty"`
	Sequencer   string `json:"sequencer,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// Validate checks the required fields.
func (e ObjectFinalized) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: object name is required", ErrInvalidEvent)
	}
	return nil
}

// Key identifies one delivery of the event for redelivery suppression.
// Two uploads of the same name differ by etag or sequencer.
func (e ObjectFinalized) Key() string {
	return "object:" + e.Bucket + "/" + e.Name + "#" + e.ETag + "#" + e.Sequencer
}

// DocumentCreated carries the initial contents of a new record.
type DocumentCreated struct {
	RecordID string         `json:"recordId"`
	After    map[string]any `json:"after"`
}

// Validate checks the required fields.
func (e DocumentCreated) Validate() error {
	if strings.TrimSpace(e.RecordID) == "" {
		return fmt.Errorf("%w: recordId is required", ErrInvalidEvent)
	}
	if e.After == nil {
		return fmt.Errorf("%w: after is required", ErrInvalidEvent)
	}
	return nil
}

// DocumentUpdated carries both versions of a changed record. Before may be nil
// when the source cannot provide it.
type DocumentUpdated struct {
	RecordID string         `json:"recordId"`
	Before   map[string]any `json:"before,omitempty"`
	After    map[string]any `json:"after"`
}

// Validate checks the required fields.
func (e DocumentUpdated) Validate() error {
	if strings.TrimSpace(e.RecordID) == "" {
		return fmt.Errorf("%w: recordId is required", ErrInvalidEvent)
	}
	if e.After == nil {
		return fmt.Errorf("%w: after is required", ErrInvalidEvent)
	}
	return nil
}

// IsObjectCreated reports whether an S3 event name denotes a finished upload.
func IsObjectCreated(eventName string) bool {
	return strings.HasPrefix(eventName, "s3:ObjectCreated:") || strings.HasPrefix(eventName, "ObjectCreated:")
}

// FromNotification converts a bucket notification record. Object keys arrive
// URL-encoded and are decoded here. ok is false for non-create events.
func FromNotification(ev notification.Event) (ObjectFinalized, bool, error) {
	if !IsObjectCreated(ev.EventName) {
		return ObjectFinalized{}, false, nil
	}
	key, err := url.QueryUnescape(ev.S3.Object.Key)
	if err != nil {
		return ObjectFinalized{}, false, fmt.Errorf("%w: undecodable object key %q", ErrInvalidEvent, ev.S3.Object.Key)
	}
	out := ObjectFinalized{
		Bucket:      ev.S3.Bucket.Name,
		Name:        key,
		ContentType: ev.S3.Object.ContentType,
		ETag:        ev.S3.Object.ETag,
		Sequencer:   ev.S3.Object.Sequencer,
		Size:        ev.S3.Object.Size,
	}
	if err := out.Validate(); err != nil {
		return ObjectFinalized{}, false, err
	}
	return out, true, nil
}

// NotificationPayload is the JSON body MinIO posts to webhook targets.
type NotificationPayload struct {
	EventName string               `json:"EventName"`
	Key       string               `json:"Key"`
	Records   []notification.Event `json:"Records"`
}

// ObjectEvents converts every create record of the payload.
func (p NotificationPayload) ObjectEvents() ([]ObjectFinalized, error) {
	var out []ObjectFinalized
	for _, rec := range p.Records {
		ev, ok, err := FromNotification(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, ev)
		}
	}
	return out, nil
}
