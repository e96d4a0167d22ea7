// Package jobs schedules recurring background work with gocron.
//
// The pipeline uses it for the periodic read-only share-id audit. Tasks receive
// a context that is cancelled on Shutdown.
package jobs
