// Package counter allocates sequential identifiers from counter documents.
//
// A counter is a document "<collection>/<name>" with a single positive integer
// field, nextValue. Allocation reads it and writes nextValue+1 inside a document
// store transaction, so two concurrent writers can never observe the same value:
// the loser's read set is invalidated and its transaction is re-run. A missing or
// invalid counter starts at Config.Start.
//
// Allocate composes into a larger transaction (ingestion allocates a share id
// while writing the record). Next and Assign run their own.
package counter
