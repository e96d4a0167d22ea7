// Package config loads the story pipeline configuration.
//
// Values come from environment variables, optionally seeded from a .env
// file. Every field declares its default in a `default` struct tag, and
// nested keys map to variables by replacing dots with underscores
// (pipeline.audio_segments -> PIPELINE_AUDIO_SEGMENTS).
//
// # Configuration Structure
//
//   - Server: HTTP port, API key, event sources
//   - Storage: MinIO credentials, bucket and public base URL
//   - Log: level and format
//   - DocStore, Database, Mongo: document store driver and connections
//   - Redis: redelivery suppression
//   - Push: notification gateway
//   - Pipeline, Counter: ingestion layout and share id counter
//   - Reconcile: batch size and audit schedule
//   - Tracing: OTLP export
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Pipeline.RootToken)
package config
