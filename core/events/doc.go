// Package events defines the three event shapes consumed by the pipeline and
// converts storage notifications into them.
//
// ObjectFinalized comes from the object store, either through a bucket
// notification listener or a webhook delivery. DocumentCreated and
// DocumentUpdated come from the document store change feed or from webhooks.
// Delivery is at-least-once, so consumers must be idempotent.
package events
