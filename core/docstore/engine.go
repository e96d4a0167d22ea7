package docstore

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// record is the versioned form of a document held by a backend.
// Version 0 means the document does not exist.
type record struct {
	data       map[string]any
	version    int64
	createTime time.Time
	updateTime time.Time
}

func (r record) snapshot(ref DocRef) *Snapshot {
	return &Snapshot{
		Ref:        ref,
		Exists:     r.version > 0,
		Data:       CopyData(r.data),
		CreateTime: r.createTime,
		UpdateTime: r.updateTime,
	}
}

type write struct {
	ref       DocRef
	patch     Patch
	merge     bool
	mustExist bool
}

// pending is the resolved outcome of all writes to one document in a commit.
type pending struct {
	ref    DocRef
	before record
	after  record
}

// backend persists versioned records. commit must validate that every read
// version is still current and fail with errConflict otherwise, then persist
// the writes atomically.
type backend interface {
	load(ctx context.Context, ref DocRef) (record, error)
	loadAll(ctx context.Context, collection string) ([]DocRef, []record, error)
	commit(ctx context.Context, reads map[DocRef]int64, writes []write, now time.Time) ([]pending, error)
	close(ctx context.Context) error
}

// resolveWrites folds writes onto the current records, returning the per-document
// results in first-write order. current is called once per distinct document.
func resolveWrites(writes []write, now time.Time, current func(DocRef) (record, error)) ([]pending, error) {
	byRef := make(map[DocRef]*pending)
	var order []DocRef
	for _, w := range writes {
		p, ok := byRef[w.ref]
		if !ok {
			rec, err := current(w.ref)
			if err != nil {
				return nil, err
			}
			p = &pending{ref: w.ref, before: rec, after: rec}
			byRef[w.ref] = p
			order = append(order, w.ref)
		}
		if w.mustExist && p.after.version == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, w.ref.Path())
		}
		next := record{
			data:       ApplyPatch(p.after.data, w.patch, w.merge, now),
			version:    p.before.version + 1,
			createTime: p.after.createTime,
			updateTime: now,
		}
		if next.createTime.IsZero() {
			next.createTime = now
		}
		p.after = next
	}
	out := make([]pending, 0, len(order))
	for _, ref := range order {
		out = append(out, *byRef[ref])
	}
	return out, nil
}

func changesFrom(results []pending) []Change {
	changes := make([]Change, 0, len(results))
	for _, p := range results {
		c := Change{Type: ChangeUpdated, Ref: p.ref, After: p.after.snapshot(p.ref)}
		if p.before.version == 0 {
			c.Type = ChangeCreated
		} else {
			c.Before = p.before.snapshot(p.ref)
		}
		changes = append(changes, c)
	}
	return changes
}

// Option configures the built-in stores.
type Option func(*engine)

// WithMaxAttempts sets the transaction attempt budget.
func WithMaxAttempts(n int) Option {
	return func(e *engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithClock overrides the commit clock used for ServerTimestamp and metadata.
func WithClock(now func() time.Time) Option {
	return func(e *engine) {
		if now != nil {
			e.now = now
		}
	}
}

// engine implements Store and Watcher over a backend using optimistic transactions.
type engine struct {
	backend     backend
	maxAttempts int
	now         func() time.Time
	hub         *broadcaster
}

func newEngine(b backend, opts ...Option) *engine {
	e := &engine{
		backend:     b,
		maxAttempts: DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
		hub:         newBroadcaster(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *engine) Get(ctx context.Context, ref DocRef) (*Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	rec, err := e.backend.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return rec.snapshot(ref), nil
}

func (e *engine) Set(ctx context.Context, ref DocRef, patch Patch, opts ...SetOption) error {
	return e.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Set(ref, patch, opts...)
	})
}

func (e *engine) Update(ctx context.Context, ref DocRef, patch Patch) error {
	return e.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Update(ref, patch)
	})
}

func (e *engine) List(ctx context.Context, collection string) ([]*Snapshot, error) {
	refs, recs, err := e.backend.loadAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := make([]*Snapshot, 0, len(refs))
	for i, ref := range refs {
		out = append(out, recs[i].snapshot(ref))
	}
	return out, nil
}

func (e *engine) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	for attempt := 1; ; attempt++ {
		tx := &txn{engine: e, reads: make(map[DocRef]int64)}
		err := fn(ctx, tx)
		if err == nil {
			if err = e.commit(ctx, tx.reads, tx.writes); err == nil {
				return nil
			}
		}
		if !IsConflict(err) {
			return err
		}
		if attempt >= e.maxAttempts {
			return fmt.Errorf("%w after %d attempts: %v", ErrTransactionAborted, attempt, err)
		}
		if err := backoff(ctx, attempt); err != nil {
			return err
		}
	}
}

func (e *engine) commit(ctx context.Context, reads map[DocRef]int64, writes []write) error {
	if len(writes) == 0 && len(reads) == 0 {
		return nil
	}
	results, err := e.backend.commit(ctx, reads, writes, e.now())
	if err != nil {
		return err
	}
	e.hub.publish(changesFrom(results))
	return nil
}

func (e *engine) Batch() Batch {
	return &batch{engine: e}
}

func (e *engine) Watch(ctx context.Context, collection string) (<-chan Change, error) {
	return e.hub.subscribe(ctx, collection), nil
}

func (e *engine) Close(ctx context.Context) error {
	e.hub.closeAll()
	return e.backend.close(ctx)
}

// backoff sleeps a jittered, growing interval between attempts.
func backoff(ctx context.Context, attempt int) error {
	base := time.Duration(attempt) * 2 * time.Millisecond
	d := base + time.Duration(rand.Int64N(int64(base)+1))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type txn struct {
	engine *engine
	reads  map[DocRef]int64
	writes []write
}

func (t *txn) Get(ctx context.Context, ref DocRef) (*Snapshot, error) {
	if len(t.writes) > 0 {
		return nil, ErrReadAfterWrite
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	rec, err := t.engine.backend.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	if prev, seen := t.reads[ref]; seen && prev != rec.version {
		return nil, ConflictError(fmt.Errorf("document %s changed during transaction", ref.Path()))
	}
	t.reads[ref] = rec.version
	return rec.snapshot(ref), nil
}

func (t *txn) Set(ref DocRef, patch Patch, opts ...SetOption) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	t.writes = append(t.writes, write{ref: ref, patch: patch, merge: SetMerges(opts)})
	return nil
}

func (t *txn) Update(ref DocRef, patch Patch) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	t.writes = append(t.writes, write{ref: ref, patch: patch, merge: true, mustExist: true})
	return nil
}

type batch struct {
	engine *engine
	writes []write
}

func (b *batch) Set(ref DocRef, patch Patch, opts ...SetOption) {
	b.writes = append(b.writes, write{ref: ref, patch: patch, merge: SetMerges(opts)})
}

func (b *batch) Update(ref DocRef, patch Patch) {
	b.writes = append(b.writes, write{ref: ref, patch: patch, merge: true, mustExist: true})
}

func (b *batch) Len() int {
	return len(b.writes)
}

func (b *batch) Commit(ctx context.Context) error {
	if len(b.writes) > MaxBatchWrites {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(b.writes), MaxBatchWrites)
	}
	for _, w := range b.writes {
		if err := w.ref.Validate(); err != nil {
			return err
		}
	}
	return b.engine.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		tx.(*txn).writes = append([]write(nil), b.writes...)
		return nil
	})
}
