// Package docstore defines the document database contract used by the pipeline
// and ships three backends that share one optimistic transaction engine.
//
// # Contract
//
// A Store exposes Get / Set / Update / List, multi-document transactions and
// write batches. Patches are flat maps of top-level fields; two sentinels are
// understood by every backend:
//   - ServerTimestamp: replaced by the commit clock.
//   - ArrayUnion(...): appends elements not already present in an array field.
//
// # Transactions
//
// RunTransaction records the version of every document read and validates the
// read set when committing. A conflicting writer makes the commit fail and the
// transaction function is re-run with jittered backoff, up to the attempt budget
// (DefaultMaxAttempts). Exhaustion surfaces as ErrTransactionAborted so that
// event handlers fail and the event is redelivered.
//
// # Backends
//
//   - MemoryStore: process-local, used for tests and single-process runs.
//   - SQLStore: a "documents" table over GORM (MySQL, Postgres, SQLite).
//   - MongoStore: MongoDB, committing inside server-side transactions.
//
// Every store implements Watcher. MemoryStore and SQLStore publish committed
// changes to in-process subscribers; MongoStore reads change streams.
//
// Open picks a backend from Config.
package docstore
