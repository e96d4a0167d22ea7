package reconcile

import (
	"context"
	"sort"

	"story-pipeline/core/docstore"
)

// loadRecords reads the collection, through the cache when the spec enables it.
func loadRecords(ctx context.Context, spec *Spec, store docstore.Store) ([]*docstore.Snapshot, error) {
	if spec.CacheTTL > 0 {
		cache, err := GetOrBuildCache(ctx, spec, store)
		if err != nil {
			return nil, err
		}
		return cache.Records, nil
	}
	cache, err := BuildCache(ctx, spec, store)
	if err != nil {
		return nil, err
	}
	return cache.Records, nil
}

// audit loads the collection and runs the adapter's audit, ordering results by id.
func audit(ctx context.Context, spec *Spec, store docstore.Store, opts ReconcileOptions) ([]*docstore.Snapshot, []ReconcileResult, map[string]int, error) {
	records, err := loadRecords(ctx, spec, store)
	if err != nil {
		return nil, nil, nil, err
	}
	results, counts, err := spec.Adapter.Audit(ctx, records, opts)
	if err != nil {
		return nil, nil, nil, err
	}
	sortResults(results)
	return records, results, counts, nil
}

// ReconcileOne returns the audit result of a single record, or nil when the
// record does not exist. Collection-wide checks still see every record.
func ReconcileOne(ctx context.Context, spec *Spec, store docstore.Store, id string, opts ReconcileOptions) (*ReconcileResult, error) {
	_, results, _, err := audit(ctx, spec, store, opts)
	if err != nil {
		return nil, err
	}
	i := sort.Search(len(results), func(i int) bool { return results[i].ID >= id })
	if i < len(results) && results[i].ID == id {
		return &results[i], nil
	}
	return nil, nil
}

func sortResults(results []ReconcileResult) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].ID < results[j].ID
	})
}
