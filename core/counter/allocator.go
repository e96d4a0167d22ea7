package counter

import (
	"context"
	"fmt"

	"story-pipeline/core/docstore"
	"story-pipeline/core/utils"
)

// Field names of the counter document.
const (
	FieldNextValue = "nextValue"
	FieldUpdatedAt = "updatedAt"
)

// Config holds counter settings.
type Config struct {
	// Collection holds one document per counter namespace.
	Collection string `mapstructure:"collection" default:"counters"`
	// Start is handed out when a counter document is missing or invalid.
	Start int64 `mapstructure:"start" default:"1"`
}

// Allocator hands out strictly increasing integers per namespace.
// Mutual exclusion comes from the document store transaction alone.
type Allocator struct {
	store      docstore.Store
	collection string
	start      int64
}

// New creates an allocator over store.
func New(store docstore.Store, cfg Config) *Allocator {
	if cfg.Collection == "" {
		cfg.Collection = "counters"
	}
	if cfg.Start <= 0 {
		cfg.Start = 1
	}
	return &Allocator{store: store, collection: cfg.Collection, start: cfg.Start}
}

// Ref returns the counter document of a namespace.
func (a *Allocator) Ref(name string) docstore.DocRef {
	return docstore.Doc(a.collection, name)
}

// Peek reads the counter inside tx and returns the value the next allocation
// would hand out. Nothing is written.
func (a *Allocator) Peek(ctx context.Context, tx docstore.Tx, name string) (int64, error) {
	snap, err := tx.Get(ctx, a.Ref(name))
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", name, err)
	}
	if n, ok := utils.ToInt64(snap.Field(FieldNextValue)); ok && n > 0 {
		return n, nil
	}
	return a.start, nil
}

// Reserve writes the counter past value. It must follow a Peek in the same
// transaction, after every other read of that transaction.
func (a *Allocator) Reserve(tx docstore.Tx, name string, value int64) error {
	return tx.Set(a.Ref(name), docstore.Patch{
		FieldNextValue: value + 1,
		FieldUpdatedAt: docstore.ServerTimestamp,
	}, docstore.MergeAll)
}

// Allocate is Peek followed by Reserve.
func (a *Allocator) Allocate(ctx context.Context, tx docstore.Tx, name string) (int64, error) {
	n, err := a.Peek(ctx, tx, name)
	if err != nil {
		return 0, err
	}
	if err := a.Reserve(tx, name, n); err != nil {
		return 0, err
	}
	return n, nil
}
