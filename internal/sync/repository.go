package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/njoerd114/pawsync/internal/model"
	"github.com/njoerd114/pawsync/internal/remote"
	"github.com/njoerd114/pawsync/internal/retry"
)

// ErrCoordinatedCreate is returned by Create on collections whose documents
// may only be created inside a remote transaction, such as bookings.
var ErrCoordinatedCreate = errors.New("collection is created through a remote transaction only")

// Binding ties a repository to its collection.
type Binding struct {
	Collection string
	// ScopeField is the payload field that partitions the collection for
	// sync, e.g. "petId". Empty means the whole collection is one scope.
	ScopeField string
	Policy     Policy
	// Coordinated collections reject optimistic creates; new documents come
	// from a transactional writer (the booking coordinator).
	Coordinated bool
}

// Repository is the local-first read/write contract for one entity type.
type Repository[E model.Entity[E]] struct {
	engine  *Engine
	binding Binding
	log     *slog.Logger
}

// NewRepository creates a repository for binding on engine.
func NewRepository[E model.Entity[E]](engine *Engine, binding Binding) *Repository[E] {
	return &Repository[E]{
		engine:  engine,
		binding: binding,
		log:     engine.log.With("collection", binding.Collection),
	}
}

// Collection returns the collection name.
func (r *Repository[E]) Collection() string { return r.binding.Collection }

// Policy returns the sync policy.
func (r *Repository[E]) Policy() Policy { return r.binding.Policy }

// ReadScoped returns the cached entities of scope. A warm scope is returned
// at once and refreshed in the background if stale. A cold scope is fetched
// from the remote store first when the policy says so; remote failures then
// match model.ErrRemoteUnavailable.
func (r *Repository[E]) ReadScoped(ctx context.Context, scope string) ([]E, error) {
	docs, err := r.ReadDocuments(ctx, scope)
	if err != nil {
		return nil, err
	}
	return decodeAll[E](docs)
}

// ReadDocuments is ReadScoped without decoding.
func (r *Repository[E]) ReadDocuments(ctx context.Context, scope string) ([]model.Document, error) {
	cached, err := r.localScoped(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 || !r.binding.Policy.BlockOnEmpty {
		r.engine.scheduler.Trigger(ctx, r, scope)
		return cached, nil
	}

	r.log.Debug("cold scope, fetching from remote", "scope", scope)
	docs, err := r.engine.remote.Query(ctx, r.binding.Collection, remote.Query{Filters: r.scopeFilters(scope)})
	if err != nil {
		return nil, fmt.Errorf("fetching %s for %q: %w: %w", r.binding.Collection, scope, model.ErrRemoteUnavailable, err)
	}
	if err := r.store(ctx, docs); err != nil {
		return nil, err
	}
	if err := RecordSync(ctx, r.engine.local, r.binding.Collection, scope, r.engine.nowMillis()); err != nil {
		return nil, err
	}
	return docs, nil
}

// Get returns one entity, from the cache if present, otherwise from the
// remote store (and then cached).
func (r *Repository[E]) Get(ctx context.Context, id string) (E, error) {
	var zero E
	cached, err := r.engine.local.Get(ctx, r.binding.Collection, id)
	if err != nil {
		return zero, fmt.Errorf("reading %s/%s from cache: %w", r.binding.Collection, id, err)
	}
	if cached != nil {
		return model.Decode[E](*cached)
	}

	doc, err := r.engine.remote.Get(ctx, r.binding.Collection, id)
	if errors.Is(err, model.ErrNotFound) {
		return zero, fmt.Errorf("%s/%s: %w", r.binding.Collection, id, model.ErrNotFound)
	}
	if err != nil {
		return zero, fmt.Errorf("fetching %s/%s: %w: %w", r.binding.Collection, id, model.ErrRemoteUnavailable, err)
	}
	if err := r.store(ctx, []model.Document{doc}); err != nil {
		return zero, err
	}
	return model.Decode[E](doc)
}

// Create assigns a new id and timestamps to e, writes it to the cache, and
// pushes it to the remote store in the background. It returns once the
// cache write is done.
func (r *Repository[E]) Create(ctx context.Context, e E) (E, error) {
	if r.binding.Coordinated {
		return e, fmt.Errorf("creating %s: %w", r.binding.Collection, ErrCoordinatedCreate)
	}
	now := r.engine.nowMillis()
	e = e.WithMeta(model.Meta{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now})

	doc, err := model.Encode(e)
	if err != nil {
		return e, fmt.Errorf("encoding new %s: %w", r.binding.Collection, err)
	}
	if err := r.engine.local.Put(ctx, r.binding.Collection, doc); err != nil {
		return e, fmt.Errorf("caching new %s: %w", r.binding.Collection, err)
	}
	r.push(ctx, doc)
	return e, nil
}

// Update merges fields into the cached entity id, re-writes it locally, and
// pushes the changed fields in the background. The push merges them into the
// current remote copy, so fields the caller did not touch keep their remote
// values. It fails with model.ErrNotFound when id is not cached.
func (r *Repository[E]) Update(ctx context.Context, id string, fields map[string]any) (E, error) {
	var zero E
	cached, err := r.engine.local.Get(ctx, r.binding.Collection, id)
	if err != nil {
		return zero, fmt.Errorf("reading %s/%s from cache: %w", r.binding.Collection, id, err)
	}
	if cached == nil {
		return zero, fmt.Errorf("%s/%s: %w", r.binding.Collection, id, model.ErrNotFound)
	}

	merged := cached.Merge(fields)
	merged.UpdatedAt = r.engine.nowMillis()
	e, err := model.Decode[E](merged)
	if err != nil {
		return zero, fmt.Errorf("updating %s/%s: %w", r.binding.Collection, id, err)
	}
	doc, err := model.Encode(e)
	if err != nil {
		return zero, fmt.Errorf("updating %s/%s: %w", r.binding.Collection, id, err)
	}
	if err := r.engine.local.Put(ctx, r.binding.Collection, doc); err != nil {
		return zero, fmt.Errorf("caching %s/%s: %w", r.binding.Collection, id, err)
	}

	changed := make(map[string]any, len(fields))
	for k := range fields {
		if v, ok := doc.Fields[k]; ok {
			changed[k] = v
		}
	}
	r.pushPatch(ctx, doc, changed)
	return e, nil
}

// Reconcile pulls scope from the remote store into the cache and records
// the sync time. In full mode every remote document of the scope replaces
// its cached copy. In incremental mode a scope that has synced before only
// fetches documents newer than the newest cached one; the first sync is
// always full, since locally created documents say nothing about what the
// remote store holds. It returns the number of documents written.
func (r *Repository[E]) Reconcile(ctx context.Context, scope string) (int, error) {
	q := remote.Query{Filters: r.scopeFilters(scope)}

	last, err := LastSync(ctx, r.engine.local, r.binding.Collection, scope)
	if err != nil {
		return 0, err
	}
	if r.binding.Policy.Mode == ModeIncremental && last > 0 {
		cached, err := r.localScoped(ctx, scope)
		if err != nil {
			return 0, err
		}
		var newest int64
		for _, d := range cached {
			newest = max(newest, d.CreatedAt)
		}
		if newest > 0 {
			q.Filters = append(q.Filters, remote.Filter{Field: model.FieldCreatedAt, Op: remote.OpGt, Value: newest})
		}
		q.OrderBy = &remote.Order{Field: model.FieldCreatedAt}
	}

	docs, err := r.engine.remote.Query(ctx, r.binding.Collection, q)
	if err != nil {
		return 0, fmt.Errorf("reconciling %s for %q: %w: %w", r.binding.Collection, scope, model.ErrRemoteUnavailable, err)
	}
	if err := r.store(ctx, docs); err != nil {
		return 0, err
	}
	if err := RecordSync(ctx, r.engine.local, r.binding.Collection, scope, r.engine.nowMillis()); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Stale reports whether scope is due for reconciliation.
func (r *Repository[E]) Stale(ctx context.Context, scope string) (bool, error) {
	last, err := LastSync(ctx, r.engine.local, r.binding.Collection, scope)
	if err != nil {
		return false, err
	}
	return r.binding.Policy.Stale(last, r.engine.nowMillis()), nil
}

// Evict removes id from the cache only; the remote copy is untouched.
func (r *Repository[E]) Evict(ctx context.Context, id string) error {
	if err := r.engine.local.Delete(ctx, r.binding.Collection, id); err != nil {
		return fmt.Errorf("evicting %s/%s: %w", r.binding.Collection, id, err)
	}
	return nil
}

// --- helpers -----------------------------------------------------------------

// pushPatch merges fields into the remote copy of doc inside a transaction,
// retried while it conflicts. A document missing remotely (its create push
// has not landed) is written whole.
func (r *Repository[E]) pushPatch(ctx context.Context, doc model.Document, fields map[string]any) {
	collection := r.binding.Collection
	r.engine.bg.Go(ctx, Task{
		Kind:       TaskPush,
		Collection: collection,
		Key:        doc.ID,
		Run: func(ctx context.Context) error {
			conflict := func(err error) bool { return errors.Is(err, model.ErrConflict) }
			return retry.Do(ctx, retry.DefaultPolicy(), conflict, func() error {
				return r.engine.remote.Transaction(ctx, func(tx remote.Tx) error {
					current, err := tx.Get(ctx, collection, doc.ID)
					if errors.Is(err, model.ErrNotFound) {
						return tx.Set(ctx, collection, doc)
					}
					if err != nil {
						return err
					}
					return tx.Set(ctx, collection, current.Merge(fields))
				})
			})
		},
	})
}

func (r *Repository[E]) push(ctx context.Context, doc model.Document) {
	collection := r.binding.Collection
	r.engine.bg.Go(ctx, Task{
		Kind:       TaskPush,
		Collection: collection,
		Key:        doc.ID,
		Run: func(ctx context.Context) error {
			return r.engine.remote.Set(ctx, collection, doc)
		},
	})
}

func (r *Repository[E]) scopeFilters(scope string) []remote.Filter {
	if r.binding.ScopeField == "" {
		return nil
	}
	return []remote.Filter{remote.Where(r.binding.ScopeField, scope)}
}

func (r *Repository[E]) localScoped(ctx context.Context, scope string) ([]model.Document, error) {
	all, err := r.engine.local.GetAll(ctx, r.binding.Collection)
	if err != nil {
		return nil, fmt.Errorf("reading %s from cache: %w", r.binding.Collection, err)
	}
	if r.binding.ScopeField == "" {
		return all, nil
	}
	var out []model.Document
	for _, d := range all {
		if v, ok := d.Fields[r.binding.ScopeField].(string); ok && v == scope {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *Repository[E]) store(ctx context.Context, docs []model.Document) error {
	for _, d := range docs {
		if err := r.engine.local.Put(ctx, r.binding.Collection, d); err != nil {
			return fmt.Errorf("caching %s/%s: %w", r.binding.Collection, d.ID, err)
		}
	}
	return nil
}

func decodeAll[E model.Entity[E]](docs []model.Document) ([]E, error) {
	out := make([]E, 0, len(docs))
	for _, d := range docs {
		e, err := model.Decode[E](d)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
