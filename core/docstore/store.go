package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxBatchWrites is the per-commit write cap enforced for batches.
const MaxBatchWrites = 500

// DefaultMaxAttempts is the number of times a conflicting transaction is run
// before it is reported as aborted.
const DefaultMaxAttempts = 5

var (
	// ErrNotFound is returned by Update when the target document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrTransactionAborted is returned when a transaction could not commit within
	// the retry budget.
	ErrTransactionAborted = errors.New("transaction aborted")
	// ErrBatchTooLarge is returned when a batch exceeds MaxBatchWrites.
	ErrBatchTooLarge = errors.New("batch exceeds write limit")
	// ErrInvalidRef is returned for document references with an empty collection or id.
	ErrInvalidRef = errors.New("invalid document reference")
	// ErrReadAfterWrite is returned when a transaction reads after it has written.
	ErrReadAfterWrite = errors.New("transaction reads must happen before writes")

	// errConflict is the retryable commit failure reported by backends.
	errConflict = errors.New("write conflict")
)

// IsConflict reports whether err is a retryable commit conflict.
// Backends outside this package wrap their own conflicts with ConflictError.
func IsConflict(err error) bool {
	return errors.Is(err, errConflict)
}

// ConflictError wraps err so that IsConflict reports true for it.
func ConflictError(err error) error {
	if err == nil {
		return errConflict
	}
	return fmt.Errorf("%w: %v", errConflict, err)
}

// DocRef addresses one document.
type DocRef struct {
	Collection string
	ID         string
}

// Doc builds a reference to collection/id.
func Doc(collection, id string) DocRef {
	return DocRef{Collection: collection, ID: id}
}

// Path returns "collection/id".
func (r DocRef) Path() string {
	return r.Collection + "/" + r.ID
}

// Validate checks that both parts of the reference are set.
func (r DocRef) Validate() error {
	if strings.TrimSpace(r.Collection) == "" || strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidRef, r.Path())
	}
	return nil
}

// Snapshot is a point-in-time read of a document.
type Snapshot struct {
	Ref    DocRef
	Exists bool
	Data   map[string]any

	// CreateTime and UpdateTime are store metadata, independent of any
	// createdAt / updatedAt fields the document itself may carry.
	CreateTime time.Time
	UpdateTime time.Time
}

// Field returns the named field, or nil when absent.
func (s *Snapshot) Field(name string) any {
	if s == nil || s.Data == nil {
		return nil
	}
	return s.Data[name]
}

// Patch is a set of top-level field writes. Values may be the ServerTimestamp
// sentinel or an ArrayUnion.
type Patch map[string]any

// SetOption modifies Set behavior.
type SetOption interface {
	applySet(*setConfig)
}

type setConfig struct {
	merge bool
}

type mergeAll struct{}

func (mergeAll) applySet(c *setConfig) { c.merge = true }

// MergeAll makes Set merge the patch into the existing document instead of
// replacing it. Fields not named in the patch are preserved.
var MergeAll SetOption = mergeAll{}

// SetMerges reports whether opts request merge semantics.
func SetMerges(opts []SetOption) bool {
	var cfg setConfig
	for _, o := range opts {
		if o != nil {
			o.applySet(&cfg)
		}
	}
	return cfg.merge
}

// Tx is the view of the store inside RunTransaction.
// All reads must precede all writes; writes become visible on commit.
type Tx interface {
	Get(ctx context.Context, ref DocRef) (*Snapshot, error)
	Set(ref DocRef, patch Patch, opts ...SetOption) error
	Update(ref DocRef, patch Patch) error
}

// Batch groups blind writes into one atomic commit of at most MaxBatchWrites.
type Batch interface {
	Set(ref DocRef, patch Patch, opts ...SetOption)
	Update(ref DocRef, patch Patch)
	Len() int
	Commit(ctx context.Context) error
}

// Store is the document database contract used by the pipeline.
type Store interface {
	// Get returns a snapshot; a missing document yields Exists == false, not an error.
	Get(ctx context.Context, ref DocRef) (*Snapshot, error)
	// Set writes the patch, replacing the document unless MergeAll is given.
	Set(ctx context.Context, ref DocRef, patch Patch, opts ...SetOption) error
	// Update merges the patch into an existing document, or returns ErrNotFound.
	Update(ctx context.Context, ref DocRef, patch Patch) error
	// List returns every document of a collection ordered by id.
	List(ctx context.Context, collection string) ([]*Snapshot, error)
	// RunTransaction runs fn with optimistic concurrency: the read set is validated
	// at commit and fn is re-run on conflict, up to the store's attempt budget.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Batch starts a new write batch.
	Batch() Batch
	// Close releases backend resources.
	Close(ctx context.Context) error
}

// ChangeType classifies a document change.
type ChangeType string

const (
	// ChangeCreated is emitted for the first write of a document.
	ChangeCreated ChangeType = "created"
	// ChangeUpdated is emitted for every later write.
	ChangeUpdated ChangeType = "updated"
)

// Change describes one committed document write.
type Change struct {
	Type   ChangeType
	Ref    DocRef
	Before *Snapshot
	After  *Snapshot
}

// Watcher streams committed changes for a collection.
// The channel is closed when ctx is done.
type Watcher interface {
	Watch(ctx context.Context, collection string) (<-chan Change, error)
}
