package reconcile

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"story-pipeline/core/docstore"
	"story-pipeline/core/reconcile"
	"story-pipeline/core/utils"
	"story-pipeline/feature/stories/models"
)

// FlagNormalize rewrites legacy string share ids ("17") as integers.
const FlagNormalize = "normalize"

// Tallies reported by the share id audit.
const (
	CountMissing          = "missing"
	CountDuplicateGroups  = "duplicate_groups"
	CountDuplicates       = "duplicates"
	CountToUpdate         = "to_update"
	CountLegacy           = "legacy_strings"
	CountMissingCreatedAt = "missing_created_at"
	CountMissingTitle     = "missing_title"
)

// Issue labels.
const (
	IssueMissing          = "share_id: missing"
	IssueLegacy           = "share_id: stored as string"
	IssueMissingCreatedAt = "created_at: missing"
	IssueMissingTitle     = "title: missing"
)

// ShareIDAdapter audits and repairs share ids: every record ends up with a
// unique positive integer. Among records sharing a value the one created
// first keeps it; the others and the records without one receive the
// smallest free integers, duplicates first, each group in creation order.
type ShareIDAdapter struct{}

// NewShareIDAdapter creates the adapter.
func NewShareIDAdapter() *ShareIDAdapter {
	return &ShareIDAdapter{}
}

// Name returns the adapter name.
func (a *ShareIDAdapter) Name() string {
	return "shareids"
}

type entry struct {
	id      string
	data    map[string]any
	created time.Time
	shareID string
}

type assignment struct {
	id     string
	value  int64
	reason string
}

type shareIDPlan struct {
	entries     []entry
	assignments []assignment
	// duplicateOf maps a reassigned record to the value it shared.
	duplicateOf map[string]string
	groups      int
}

// EffectiveCreatedAt is the record's createdAt field when it parses, else the
// store's create time. Records with neither sort last.
func EffectiveCreatedAt(snap *docstore.Snapshot) time.Time {
	if t, ok := utils.ToTime(snap.Field(models.FieldCreatedAt)); ok {
		return t
	}
	if !snap.CreateTime.IsZero() {
		return snap.CreateTime
	}
	return time.Unix(0, math.MaxInt64).UTC()
}

func sortedEntries(records []*docstore.Snapshot) []entry {
	entries := make([]entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, entry{
			id:      r.Ref.ID,
			data:    r.Data,
			created: EffectiveCreatedAt(r),
			shareID: models.NormalizeShareID(r.Field(models.FieldShareID)),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].created.Before(entries[j].created)
	})
	return entries
}

// positive parses a normalized share id as a positive integer.
func positive(shareID string) (int64, bool) {
	n, err := strconv.ParseInt(shareID, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func planShareIDs(records []*docstore.Snapshot) shareIDPlan {
	p := shareIDPlan{entries: sortedEntries(records), duplicateOf: map[string]string{}}

	holders := map[string][]string{}
	used := map[int64]struct{}{}
	for _, e := range p.entries {
		if e.shareID == "" {
			continue
		}
		holders[e.shareID] = append(holders[e.shareID], e.id)
		if n, ok := positive(e.shareID); ok {
			used[n] = struct{}{}
		}
	}

	var queue []assignment
	for _, ids := range holders {
		if len(ids) > 1 {
			p.groups++
		}
	}
	for _, e := range p.entries {
		if e.shareID == "" {
			continue
		}
		if ids := holders[e.shareID]; len(ids) > 1 && ids[0] != e.id {
			p.duplicateOf[e.id] = e.shareID
			queue = append(queue, assignment{id: e.id, reason: fmt.Sprintf("duplicate(%s)", e.shareID)})
		}
	}
	for _, e := range p.entries {
		if e.shareID == "" {
			queue = append(queue, assignment{id: e.id, reason: "missing"})
		}
	}

	next := int64(1)
	for _, q := range queue {
		for {
			if _, taken := used[next]; !taken {
				break
			}
			next++
		}
		q.value = next
		used[next] = struct{}{}
		p.assignments = append(p.assignments, q)
	}
	return p
}

// Audit reports share id problems plus records missing createdAt or title.
// The proposed share id of each flagged record is returned in its metadata.
func (a *ShareIDAdapter) Audit(ctx context.Context, records []*docstore.Snapshot, opts reconcile.ReconcileOptions) ([]reconcile.ReconcileResult, map[string]int, error) {
	p := planShareIDs(records)
	proposed := make(map[string]int64, len(p.assignments))
	for _, as := range p.assignments {
		proposed[as.id] = as.value
	}

	counts := map[string]int{
		CountMissing:          0,
		CountDuplicateGroups:  p.groups,
		CountDuplicates:       len(p.duplicateOf),
		CountToUpdate:         len(p.assignments),
		CountLegacy:           0,
		CountMissingCreatedAt: 0,
		CountMissingTitle:     0,
	}

	results := make([]reconcile.ReconcileResult, 0, len(p.entries))
	for _, e := range p.entries {
		r := reconcile.ReconcileResult{
			ID:       e.id,
			Name:     models.DisplayTitle(e.id, e.data),
			Metadata: map[string]string{"created_at": e.created.Format(time.RFC3339Nano)},
		}
		if e.shareID != "" {
			r.Metadata["share_id"] = e.shareID
		}

		if e.shareID == "" {
			counts[CountMissing]++
			r.Issues = append(r.Issues, IssueMissing)
		}
		if sid, dup := p.duplicateOf[e.id]; dup {
			r.Issues = append(r.Issues, "share_id: duplicate of "+sid)
		}
		if n, ok := proposed[e.id]; ok {
			r.Metadata["proposed_share_id"] = strconv.FormatInt(n, 10)
		}
		if isLegacy(e) {
			counts[CountLegacy]++
			if _, queued := proposed[e.id]; !queued {
				r.Issues = append(r.Issues, IssueLegacy)
			}
		}
		if utils.IsBlank(e.data[models.FieldCreatedAt]) {
			counts[CountMissingCreatedAt]++
			r.Issues = append(r.Issues, IssueMissingCreatedAt)
		}
		if utils.IsBlank(e.data[models.FieldTitle]) {
			counts[CountMissingTitle]++
			r.Issues = append(r.Issues, IssueMissingTitle)
		}
		results = append(results, r)
	}
	return results, counts, nil
}

// isLegacy reports a positive integer share id stored as a string.
func isLegacy(e entry) bool {
	if _, ok := e.data[models.FieldShareID].(string); !ok {
		return false
	}
	_, ok := positive(e.shareID)
	return ok
}

// PlanActions returns one patch per reassigned record, in assignment order.
// With FlagNormalize, records keeping a legacy string id get it rewritten
// as an integer of the same value.
func (a *ShareIDAdapter) PlanActions(ctx context.Context, records []*docstore.Snapshot, results []reconcile.ReconcileResult, opts reconcile.ReconcileOptions) ([]reconcile.Action, error) {
	p := planShareIDs(records)

	actions := make([]reconcile.Action, 0, len(p.assignments))
	queued := make(map[string]struct{}, len(p.assignments))
	for _, as := range p.assignments {
		queued[as.id] = struct{}{}
		actions = append(actions, shareIDAction(as.id, as.value, as.reason))
	}

	if opts.Flag(FlagNormalize) {
		for _, e := range p.entries {
			if _, ok := queued[e.id]; ok || !isLegacy(e) {
				continue
			}
			n, _ := positive(e.shareID)
			actions = append(actions, shareIDAction(e.id, n, "normalize"))
		}
	}
	return actions, nil
}

func shareIDAction(id string, value int64, reason string) reconcile.Action {
	return reconcile.Action{
		Type:   reconcile.ActionPatch,
		Key:    id,
		Reason: reason,
		Patch: docstore.Patch{
			models.FieldShareID:          value,
			models.FieldShareIDUpdatedAt: docstore.ServerTimestamp,
		},
	}
}
