package reconcile

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"story-pipeline/core/docstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAdapter flags records without a "title" and plans to set it to the id.
type mockAdapter struct {
	audits   atomic.Int32
	auditErr error
}

func (m *mockAdapter) Name() string {
	return "mock"
}

func (m *mockAdapter) Audit(_ context.Context, records []*docstore.Snapshot, _ ReconcileOptions) ([]ReconcileResult, map[string]int, error) {
	m.audits.Add(1)
	if m.auditErr != nil {
		return nil, nil, m.auditErr
	}
	counts := map[string]int{"missing_title": 0}
	results := make([]ReconcileResult, 0, len(records))
	for _, r := range records {
		res := ReconcileResult{ID: r.Ref.ID, Issues: []string{}}
		if r.Field("title") == nil {
			res.Issues = append(res.Issues, "title: missing")
			counts["missing_title"]++
		}
		results = append(results, res)
	}
	return results, counts, nil
}

func (m *mockAdapter) PlanActions(_ context.Context, _ []*docstore.Snapshot, results []ReconcileResult, _ ReconcileOptions) ([]Action, error) {
	var actions []Action
	for _, r := range results {
		if len(r.Issues) > 0 {
			actions = append(actions, Action{Type: ActionPatch, Key: r.ID, Reason: "missing title", Patch: docstore.Patch{"title": r.ID}})
		}
	}
	return actions, nil
}

func seed(t *testing.T, store docstore.Store, n int, withTitle func(i int) bool) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		patch := docstore.Patch{"n": i}
		if withTitle(i) {
			patch["title"] = fmt.Sprintf("Story %d", i)
		}
		require.NoError(t, store.Set(ctx, docstore.Doc("stories", fmt.Sprintf("s%03d", i)), patch))
	}
}

func TestAudit_SortedResults(t *testing.T) {
	store := docstore.NewMemory()
	seed(t, store, 5, func(i int) bool { return i%2 == 0 })

	spec := &Spec{Adapter: &mockAdapter{}, Collection: "stories"}
	records, results, counts, err := audit(context.Background(), spec, store, ReconcileOptions{})
	require.NoError(t, err)
	assert.Len(t, records, 5)
	require.Len(t, results, 5)
	assert.Equal(t, "s000", results[0].ID)
	assert.Equal(t, "s004", results[4].ID)
	assert.Equal(t, 2, counts["missing_title"])
}

func TestReconcileOne(t *testing.T) {
	store := docstore.NewMemory()
	seed(t, store, 3, func(i int) bool { return i != 1 })
	spec := &Spec{Adapter: &mockAdapter{}, Collection: "stories"}

	res, err := ReconcileOne(context.Background(), spec, store, "s001", ReconcileOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"title: missing"}, res.Issues)

	res, err = ReconcileOne(context.Background(), spec, store, "nope", ReconcileOptions{})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestReconcileWithPlan_AdapterError(t *testing.T) {
	spec := &Spec{Adapter: &mockAdapter{auditErr: fmt.Errorf("audit error")}, Collection: "stories"}
	_, err := ReconcileWithPlan(context.Background(), spec, docstore.NewMemory(), ReconcileOptions{})
	assert.ErrorContains(t, err, "audit error")

	_, err = ReconcileOne(context.Background(), spec, docstore.NewMemory(), "s000", ReconcileOptions{})
	assert.ErrorContains(t, err, "audit error")
}

func TestGetOrBuildCache_ReusesFreshCache(t *testing.T) {
	store := docstore.NewMemory()
	seed(t, store, 2, func(int) bool { return true })
	spec := &Spec{Adapter: &mockAdapter{}, Collection: "stories", CacheTTL: time.Minute}
	defer InvalidateCache(spec)

	first, err := GetOrBuildCache(context.Background(), spec, store)
	require.NoError(t, err)

	// New records are not visible until the cache expires or is invalidated.
	require.NoError(t, store.Set(context.Background(), docstore.Doc("stories", "late"), docstore.Patch{}))
	second, err := GetOrBuildCache(context.Background(), spec, store)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Len(t, second.Records, 2)

	InvalidateCache(spec)
	third, err := GetOrBuildCache(context.Background(), spec, store)
	require.NoError(t, err)
	assert.Len(t, third.Records, 3)
}

func TestReconcileCache_IsExpired(t *testing.T) {
	assert.True(t, (&ReconcileCache{}).IsExpired())
	assert.False(t, (&ReconcileCache{Built: time.Now(), TTL: time.Minute}).IsExpired())
	assert.True(t, (&ReconcileCache{Built: time.Now().Add(-2 * time.Minute), TTL: time.Minute}).IsExpired())
}
