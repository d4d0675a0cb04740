// Package remote defines the contract of the authoritative document store and
// the query model shared by its backends ([memstore], [pgstore],
// [redisstore]).
package remote

import (
	"context"

	"github.com/njoerd114/pawsync/internal/model"
)

// Errors returned by every backend. They alias the model taxonomy so callers
// can match either name.
var (
	ErrNotFound = model.ErrNotFound
	ErrConflict = model.ErrConflict
)

// Tx is the read/write set of a remote transaction. Documents read with Get
// are validated at commit; a concurrent modification aborts the whole
// transaction with [ErrConflict].
type Tx interface {
	// Get reads a document, returning ErrNotFound if absent.
	Get(ctx context.Context, collection, id string) (model.Document, error)
	// Set buffers an insert-or-replace of doc, applied on commit.
	Set(ctx context.Context, collection string, doc model.Document) error
}

// Store is the full backend surface.
type Store interface {
	Get(ctx context.Context, collection, id string) (model.Document, error)
	Query(ctx context.Context, collection string, q Query) ([]model.Document, error)
	// Set inserts or replaces doc under its own id.
	Set(ctx context.Context, collection string, doc model.Document) error
	// Add inserts fields under a server-assigned id and returns it.
	Add(ctx context.Context, collection string, fields map[string]any) (string, error)
	// Transaction runs fn and commits its writes atomically. Returning an
	// error from fn aborts without writing.
	Transaction(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
