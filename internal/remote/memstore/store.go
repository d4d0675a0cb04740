// Package memstore is an in-process remote store. Transactions use optimistic
// concurrency: every document carries a version, reads record the version
// they saw, and commit aborts with remote.ErrConflict if any of them moved.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/njoerd114/pawsync/internal/model"
	"github.com/njoerd114/pawsync/internal/remote"
)

var _ remote.Store = (*Store)(nil)

type key struct {
	collection string
	id         string
}

type entry struct {
	doc     model.Document
	version uint64
}

// Store keeps documents in memory. The zero value is not usable; call New.
type Store struct {
	mu    sync.Mutex
	docs  map[key]entry
	nowFn func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the server clock used for assigned timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowFn = now }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{docs: make(map[key]entry), nowFn: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close is a no-op; it exists to satisfy remote.Store.
func (s *Store) Close() error { return nil }

// Get returns a copy of the document or remote.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return model.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[key{collection, id}]
	if !ok {
		return model.Document{}, fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	return e.doc.Clone(), nil
}

// Query evaluates q over the collection.
func (s *Store) Query(ctx context.Context, collection string, q remote.Query) ([]model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}
	s.mu.Lock()
	var all []model.Document
	for k, e := range s.docs {
		if k.collection == collection {
			all = append(all, e.doc.Clone())
		}
	}
	s.mu.Unlock()
	return q.Apply(all), nil
}

// Set inserts or replaces doc.
func (s *Store) Set(ctx context.Context, collection string, doc model.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc.ID == "" {
		return fmt.Errorf("setting %s: document id is empty", collection)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLocked(key{collection, doc.ID}, doc)
	return nil
}

// Add stores fields under a new server-assigned id.
func (s *Store) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLocked(key{collection, id}, model.Document{ID: id, Fields: fields})
	return id, nil
}

// Transaction runs fn against a private read/write set and commits it if no
// document fn read has changed in the meantime.
func (s *Store) Transaction(ctx context.Context, fn func(tx remote.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &txn{store: s, reads: make(map[key]uint64), writes: make(map[key]model.Document)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.writes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, seen := range tx.reads {
		if s.docs[k].version != seen {
			return fmt.Errorf("%s/%s changed during transaction: %w", k.collection, k.id, remote.ErrConflict)
		}
	}
	for _, k := range tx.order {
		s.writeLocked(k, tx.writes[k])
	}
	return nil
}

// writeLocked stores doc with server-assigned timestamps. CreatedAt keeps the
// existing value, then the caller's, then now. Caller holds s.mu.
func (s *Store) writeLocked(k key, doc model.Document) {
	now := s.nowFn().UnixMilli()
	prev, exists := s.docs[k]
	doc = doc.Clone()
	switch {
	case exists && prev.doc.CreatedAt != 0:
		doc.CreatedAt = prev.doc.CreatedAt
	case doc.CreatedAt == 0:
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	s.docs[k] = entry{doc: doc, version: prev.version + 1}
}

type txn struct {
	store  *Store
	reads  map[key]uint64
	writes map[key]model.Document
	order  []key
}

func (t *txn) Get(ctx context.Context, collection, id string) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return model.Document{}, err
	}
	k := key{collection, id}
	if doc, ok := t.writes[k]; ok {
		return doc.Clone(), nil
	}

	t.store.mu.Lock()
	e, ok := t.store.docs[k]
	t.store.mu.Unlock()

	// A missing document is read as version 0, so a concurrent insert of
	// the same id also conflicts.
	if _, seen := t.reads[k]; !seen {
		t.reads[k] = e.version
	}
	if !ok {
		return model.Document{}, fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	return e.doc.Clone(), nil
}

func (t *txn) Set(_ context.Context, collection string, doc model.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("setting %s in transaction: document id is empty", collection)
	}
	k := key{collection, doc.ID}
	if _, ok := t.writes[k]; !ok {
		t.order = append(t.order, k)
	}
	t.writes[k] = doc.Clone()
	return nil
}
