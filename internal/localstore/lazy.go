package localstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/njoerd114/pawsync/internal/model"
)

var errClosed = errors.New("local store is closed")

// Lazy opens the cache on first use. Concurrent first callers share a single
// Open; later callers reuse the same handle (or the same error).
type Lazy struct {
	path   string
	open   func() (*Store, error)
	opened atomic.Bool

	mu     sync.Mutex
	closed bool
}

// NewLazy returns a Lazy for the cache at path. Nothing is opened yet.
func NewLazy(path string) *Lazy {
	l := &Lazy{path: path}
	l.open = sync.OnceValues(func() (*Store, error) {
		l.opened.Store(true)
		return Open(path)
	})
	return l
}

// Store returns the shared handle, opening it if this is the first call.
func (l *Lazy) Store(ctx context.Context) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errClosed
	}
	return l.open()
}

// Close releases the handle if it was ever opened. Repeated calls are no-ops.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if !l.opened.Load() {
		return nil
	}
	s, err := l.open()
	if err != nil {
		return nil // nothing was opened successfully
	}
	return s.Close()
}

// Path returns the cache file path.
func (l *Lazy) Path() string { return l.path }

// Put opens the store if needed and delegates to [Store.Put].
func (l *Lazy) Put(ctx context.Context, collection string, doc model.Document) error {
	s, err := l.Store(ctx)
	if err != nil {
		return err
	}
	return s.Put(ctx, collection, doc)
}

// Get opens the store if needed and delegates to [Store.Get].
func (l *Lazy) Get(ctx context.Context, collection, id string) (*model.Document, error) {
	s, err := l.Store(ctx)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, collection, id)
}

// GetAll opens the store if needed and delegates to [Store.GetAll].
func (l *Lazy) GetAll(ctx context.Context, collection string) ([]model.Document, error) {
	s, err := l.Store(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetAll(ctx, collection)
}

// Delete opens the store if needed and delegates to [Store.Delete].
func (l *Lazy) Delete(ctx context.Context, collection, id string) error {
	s, err := l.Store(ctx)
	if err != nil {
		return err
	}
	return s.Delete(ctx, collection, id)
}

// GetSetting opens the store if needed and delegates to [Store.GetSetting].
func (l *Lazy) GetSetting(ctx context.Context, key string) (string, bool, error) {
	s, err := l.Store(ctx)
	if err != nil {
		return "", false, err
	}
	return s.GetSetting(ctx, key)
}

// SaveSetting opens the store if needed and delegates to [Store.SaveSetting].
func (l *Lazy) SaveSetting(ctx context.Context, key, value string) error {
	s, err := l.Store(ctx)
	if err != nil {
		return err
	}
	return s.SaveSetting(ctx, key, value)
}
