// Package reconcile audits and repairs a document collection.
//
// A reconciliation loads every record of a collection once, lets an Adapter
// audit them as a whole, and turns the findings into a plan of mutations. The
// plan is only executed when the caller confirmed it and did not ask for a dry
// run.
//
// # Architecture
//
// 1. Engine: loads the collection (optionally through the cache) and sorts
// results by record id for deterministic output.
//
// 2. Adapter: record-specific audit (Audit) and repair planning (PlanActions).
//
// 3. Cache: TTL-based cache of the loaded collection with singleflight stampede
// protection, used by the HTTP and scheduled audits. ApplyPlan invalidates it.
//
// # Applying
//
// Actions are committed in atomic batches of at most BatchSize writes (default
// 400, capped by docstore.MaxBatchWrites). Progress is reported after each batch.
// A failing batch aborts the run; earlier batches remain committed.
//
// # Usage Example
//
//	spec := &reconcile.Spec{Adapter: shareids.NewAdapter(cfg), Collection: "stories"}
//	plan, err := reconcile.ReconcileWithPlan(ctx, spec, store, opts)
//	executed, err := reconcile.ApplyPlan(ctx, spec, store, plan, opts)
package reconcile
