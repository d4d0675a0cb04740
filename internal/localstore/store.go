// Package localstore is the on-device document cache. Every entity collection
// lives in one SQLite table keyed by (collection, id), next to a small
// settings table that holds sync metadata.
//
// Only this package may open or query the database. Other packages receive a
// [*Store] and call its methods.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/njoerd114/pawsync/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT    NOT NULL,
    id         TEXT    NOT NULL,
    fields     TEXT    NOT NULL DEFAULT '{}',
    created_at INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Store is the SQLite-backed local cache.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default cache location:
// ~/.local/share/pawsync/cache.db
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "pawsync", "cache.db"), nil
}

// Open opens (or creates) the cache at path and applies the schema. Applying
// the schema is idempotent, so reopening an existing file keeps its data.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening cache %q: %w", path, err)
	}

	// One connection: reads and writes for the same key are serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or replaces the document with doc.ID in collection.
func (s *Store) Put(ctx context.Context, collection string, doc model.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("putting into %s: document id is empty", collection)
	}
	fields, err := doc.MarshalFields()
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", collection, doc.ID, err)
	}

	const q = `
		INSERT INTO documents (collection, id, fields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
		    fields     = excluded.fields,
		    created_at = excluded.created_at,
		    updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, collection, doc.ID, string(fields), doc.CreatedAt, doc.UpdatedAt); err != nil {
		return fmt.Errorf("putting %s/%s: %w", collection, doc.ID, err)
	}
	return nil
}

// Get returns the document with the given id, or (nil, nil) if absent.
func (s *Store) Get(ctx context.Context, collection, id string) (*model.Document, error) {
	const q = `
		SELECT id, fields, created_at, updated_at
		FROM documents WHERE collection = ? AND id = ?`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, q, collection, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s/%s: %w", collection, id, err)
	}
	return &doc, nil
}

// GetAll returns every document in collection, oldest first.
func (s *Store) GetAll(ctx context.Context, collection string) ([]model.Document, error) {
	const q = `
		SELECT id, fields, created_at, updated_at
		FROM documents WHERE collection = ?
		ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, q, collection)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes a document. Deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	const q = `DELETE FROM documents WHERE collection = ? AND id = ?`
	if _, err := s.db.ExecContext(ctx, q, collection, id); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", collection, id, err)
	}
	return nil
}

// GetSetting returns the value stored under key and whether it exists.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading setting %q: %w", key, err)
	}
	return value, true, nil
}

// SaveSetting stores value under key, replacing any previous value.
func (s *Store) SaveSetting(ctx context.Context, key, value string) error {
	const q = `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("saving setting %q: %w", key, err)
	}
	return nil
}

// --- helpers -----------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so scanDocument can be reused.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (model.Document, error) {
	var doc model.Document
	var fields string
	if err := s.Scan(&doc.ID, &fields, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return model.Document{}, err
	}
	f, err := model.UnmarshalFields([]byte(fields))
	if err != nil {
		return model.Document{}, err
	}
	doc.Fields = f
	return doc, nil
}
