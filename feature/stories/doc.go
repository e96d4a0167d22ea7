// Package stories implements the story ingestion pipeline.
//
// Uploaded objects laid out as <root>/<language>/<category>/<slug>/<file>
// are merged into the story record <slug>: images become the cover, audio
// files are recorded as media segments. Records without a share id get the
// next value of a transactional counter in the same transaction. When a
// record first becomes playable a single notification is pushed; the
// notifiedAt field is claimed before sending so concurrent deliveries do not
// announce a story twice.
//
// # Event sources
//
//   - Listener.ListenObjects: MinIO bucket notifications.
//   - Listener.WatchRecords: the document store change feed.
//   - Handler: webhook endpoints for the same events.
//
// # HTTP Endpoints
//
//   - POST /events/storage : MinIO/S3 notification payload.
//   - POST /events/object-finalized : {name, contentType}.
//   - POST /events/document-created : {recordId, after}.
//   - POST /events/document-updated : {recordId, before, after}.
//   - GET /reconcile/shareids : share id audit, read only.
package stories
