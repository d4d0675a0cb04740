// Package redisstore is a Redis-backed remote store. Each document is a JSON
// string under its own key and every collection keeps a set of member ids.
// Transactions are optimistic: keys read inside a transaction are WATCHed and
// EXEC fails if any of them changed, which surfaces as remote.ErrConflict.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/njoerd114/pawsync/internal/model"
	"github.com/njoerd114/pawsync/internal/remote"
)

var _ remote.Store = (*Store)(nil)

const defaultPrefix = "pawsync:"

// Config holds connection settings.
type Config struct {
	Address  string
	Password string
	DB       int
	PoolSize int
	// Prefix namespaces all keys. Defaults to "pawsync:".
	Prefix string
}

// Store is the Redis-backed remote store.
type Store struct {
	client *redis.Client
	prefix string
}

// Open creates a client for cfg and checks connectivity.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %q: %w", cfg.Address, err)
	}
	return New(client, cfg.Prefix), nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// envelope is the stored JSON form of a document.
type envelope struct {
	Fields    json.RawMessage `json:"fields"`
	CreatedAt int64           `json:"createdAt"`
	UpdatedAt int64           `json:"updatedAt"`
}

func (s *Store) docKey(collection, id string) string {
	return s.prefix + "doc:" + collection + ":" + id
}

func (s *Store) indexKey(collection string) string {
	return s.prefix + "idx:" + collection
}

// Get returns the document or remote.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (model.Document, error) {
	raw, err := s.client.Get(ctx, s.docKey(collection, id)).Result()
	if errors.Is(err, redis.Nil) {
		return model.Document{}, fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("getting %s/%s: %w", collection, id, err)
	}
	return decodeDocument(id, raw)
}

// Query loads the collection and evaluates q client-side.
func (s *Store) Query(ctx context.Context, collection string, q remote.Query) ([]model.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}
	ids, err := s.client.SMembers(ctx, s.indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", collection, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(collection, id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", collection, err)
	}

	docs := make([]model.Document, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue // removed between SMEMBERS and MGET
		}
		doc, err := decodeDocument(ids[i], raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return q.Apply(docs), nil
}

// Set inserts or replaces doc, keeping the stored creation time.
func (s *Store) Set(ctx context.Context, collection string, doc model.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("setting %s: document id is empty", collection)
	}
	return s.Transaction(ctx, func(tx remote.Tx) error {
		return tx.Set(ctx, collection, doc)
	})
}

// Add stores fields under a new id.
func (s *Store) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, model.Document{ID: id, Fields: fields}); err != nil {
		return "", err
	}
	return id, nil
}

// Transaction runs fn with WATCH-based optimistic locking.
func (s *Store) Transaction(ctx context.Context, fn func(tx remote.Tx) error) error {
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		t := &tx{store: s, rtx: rtx, created: make(map[string]int64), writes: make(map[string]pending)}
		if err := fn(t); err != nil {
			return err
		}
		return t.commit(ctx)
	})
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("watched key changed: %w", remote.ErrConflict)
	}
	return err
}

type pending struct {
	collection string
	doc        model.Document
}

type tx struct {
	store   *Store
	rtx     *redis.Tx
	created map[string]int64 // doc key → stored createdAt, for keys already read
	writes  map[string]pending
	order   []string
}

func (t *tx) Get(ctx context.Context, collection, id string) (model.Document, error) {
	k := t.store.docKey(collection, id)
	if p, ok := t.writes[k]; ok {
		return p.doc.Clone(), nil
	}
	if err := t.rtx.Watch(ctx, k).Err(); err != nil {
		return model.Document{}, fmt.Errorf("watching %s/%s: %w", collection, id, err)
	}
	raw, err := t.rtx.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		t.created[k] = 0
		return model.Document{}, fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("getting %s/%s: %w", collection, id, err)
	}
	doc, err := decodeDocument(id, raw)
	if err != nil {
		return model.Document{}, err
	}
	t.created[k] = doc.CreatedAt
	return doc, nil
}

func (t *tx) Set(_ context.Context, collection string, doc model.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("setting %s in transaction: document id is empty", collection)
	}
	k := t.store.docKey(collection, doc.ID)
	if _, ok := t.writes[k]; !ok {
		t.order = append(t.order, k)
	}
	t.writes[k] = pending{collection: collection, doc: doc.Clone()}
	return nil
}

// commit resolves creation times for written keys that were never read,
// stamps everything with the server clock, and runs MULTI/EXEC.
func (t *tx) commit(ctx context.Context) error {
	if len(t.writes) == 0 {
		return nil
	}
	for _, k := range t.order {
		if _, ok := t.created[k]; ok {
			continue
		}
		p := t.writes[k]
		if _, err := t.Get(ctx, p.collection, p.doc.ID); err != nil && !errors.Is(err, remote.ErrNotFound) {
			return err
		}
	}

	now, err := t.rtx.Time(ctx).Result()
	if err != nil {
		return fmt.Errorf("reading server time: %w", err)
	}

	payloads := make(map[string]string, len(t.order))
	for _, k := range t.order {
		p := t.writes[k]
		raw, err := encodeDocument(p.doc, t.created[k], now)
		if err != nil {
			return err
		}
		payloads[k] = raw
	}

	_, err = t.rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range t.order {
			p := t.writes[k]
			pipe.Set(ctx, k, payloads[k], 0)
			pipe.SAdd(ctx, t.store.indexKey(p.collection), p.doc.ID)
		}
		return nil
	})
	return err
}

func encodeDocument(doc model.Document, storedCreatedAt int64, now time.Time) (string, error) {
	fields, err := doc.MarshalFields()
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", doc.ID, err)
	}
	env := envelope{Fields: fields, CreatedAt: storedCreatedAt, UpdatedAt: now.UnixMilli()}
	if env.CreatedAt == 0 {
		env.CreatedAt = doc.CreatedAt
	}
	if env.CreatedAt == 0 {
		env.CreatedAt = env.UpdatedAt
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", doc.ID, err)
	}
	return string(raw), nil
}

func decodeDocument(id, raw string) (model.Document, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return model.Document{}, fmt.Errorf("decoding %s: %w", id, err)
	}
	fields, err := model.UnmarshalFields(env.Fields)
	if err != nil {
		return model.Document{}, fmt.Errorf("decoding %s: %w", id, err)
	}
	return model.Document{ID: id, Fields: fields, CreatedAt: env.CreatedAt, UpdatedAt: env.UpdatedAt}, nil
}
