// Package sync implements the local-first synchronization engine. Reads are
// served from the local cache, the remote store is consulted on a cold cache
// or when a collection's sync policy says the cached scope is stale, and
// writes land locally before being pushed in the background.
//
// The package contains:
//
//   - [Repository], one generic local-first repository per entity type,
//     configured by a [Binding] and its [Policy].
//   - [Scheduler], the stateless staleness trigger and recurring [Watch].
//   - [Background], which runs detached pushes and reconciliations and makes
//     their failures observable.
package sync

import (
	"context"

	"github.com/njoerd114/pawsync/internal/model"
	"github.com/njoerd114/pawsync/internal/remote"
)

// LocalStore is the on-device cache.
// Implemented by [localstore.Store] and [localstore.Lazy].
type LocalStore interface {
	Put(ctx context.Context, collection string, doc model.Document) error
	// Get returns (nil, nil) when the document is not cached.
	Get(ctx context.Context, collection, id string) (*model.Document, error)
	GetAll(ctx context.Context, collection string) ([]model.Document, error)
	Delete(ctx context.Context, collection, id string) error

	GetSetting(ctx context.Context, key string) (string, bool, error)
	SaveSetting(ctx context.Context, key, value string) error
}

// RemoteStore is the part of [remote.Store] the repositories need.
type RemoteStore interface {
	Get(ctx context.Context, collection, id string) (model.Document, error)
	Query(ctx context.Context, collection string, q remote.Query) ([]model.Document, error)
	Set(ctx context.Context, collection string, doc model.Document) error
	// Transaction is used by updates, which merge their fields into the
	// current remote copy instead of replacing it.
	Transaction(ctx context.Context, fn func(tx remote.Tx) error) error
}
