// Package storage wraps the MinIO client used to observe the media bucket.
//
// The pipeline never writes objects. It needs to verify the bucket, read object
// metadata when replaying uploads, list objects for a full rescan, and subscribe
// to bucket notifications (s3:ObjectCreated:*) as the object-finalize source.
//
// The Client interface keeps those calls mockable (see core/storage/mocks).
//
//	client, err := storage.NewClient(cfg)
//	for info := range client.ListenBucketNotification(ctx, cfg.Bucket, "stories/", "", []string{"s3:ObjectCreated:*"}) {
//		...
//	}
package storage
