// Package pgstore is the PostgreSQL remote store. All collections share one
// JSONB documents table; timestamps are server-assigned timestamptz values
// translated to milliseconds on read.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/njoerd114/pawsync/internal/model"
	"github.com/njoerd114/pawsync/internal/remote"
)

var _ remote.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT        NOT NULL,
    id         TEXT        NOT NULL,
    data       JSONB       NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_created ON documents (collection, created_at);
`

// SQLSTATE codes that mean "retry the transaction".
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Store is the PostgreSQL-backed remote store.
type Store struct {
	db *sql.DB
}

// Open connects to dsn, checks the connection, and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get returns the document or remote.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (model.Document, error) {
	return get(ctx, s.db, collection, id, false)
}

// Query runs q server-side. Payload fields are addressed with data->>key,
// passed as parameters so field names never reach the SQL text.
func (s *Store) Query(ctx context.Context, collection string, q remote.Query) ([]model.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}
	stmt, args := buildQuery(collection, q)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("querying %s: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Set inserts or replaces doc. created_at keeps the stored value on update and
// uses the document's own timestamp (or now) on insert.
func (s *Store) Set(ctx context.Context, collection string, doc model.Document) error {
	return set(ctx, s.db, collection, doc)
}

// Add inserts fields under a server-generated id.
func (s *Store) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	data, err := model.Document{Fields: fields}.MarshalFields()
	if err != nil {
		return "", fmt.Errorf("encoding %s document: %w", collection, err)
	}
	const q = `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, gen_random_uuid()::text, $2::jsonb)
		RETURNING id`
	var id string
	if err := s.db.QueryRowContext(ctx, q, collection, string(data)).Scan(&id); err != nil {
		return "", fmt.Errorf("adding to %s: %w", collection, err)
	}
	return id, nil
}

// Transaction runs fn inside a REPEATABLE READ transaction. Documents read
// through the Tx are locked with FOR UPDATE; serialization failures and
// deadlocks surface as remote.ErrConflict.
func (s *Store) Transaction(ctx context.Context, fn func(tx remote.Tx) error) (retErr error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", classify(err))
	}
	defer func() {
		if retErr != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(&tx{q: sqlTx}); err != nil {
		return classify(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", classify(err))
	}
	return nil
}

type tx struct {
	q querier
}

func (t *tx) Get(ctx context.Context, collection, id string) (model.Document, error) {
	return get(ctx, t.q, collection, id, true)
}

func (t *tx) Set(ctx context.Context, collection string, doc model.Document) error {
	return set(ctx, t.q, collection, doc)
}

// --- helpers -----------------------------------------------------------------

func get(ctx context.Context, q querier, collection, id string, forUpdate bool) (model.Document, error) {
	stmt := `
		SELECT id, data, created_at, updated_at
		FROM documents WHERE collection = $1 AND id = $2`
	if forUpdate {
		stmt += ` FOR UPDATE`
	}
	doc, err := scanDocument(q.QueryRowContext(ctx, stmt, collection, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("getting %s/%s: %w", collection, id, classify(err))
	}
	return doc, nil
}

func set(ctx context.Context, q querier, collection string, doc model.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("setting %s: document id is empty", collection)
	}
	data, err := doc.MarshalFields()
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", collection, doc.ID, err)
	}
	var createdAt sql.NullTime
	if doc.CreatedAt != 0 {
		createdAt = sql.NullTime{Time: model.FromMillis(doc.CreatedAt), Valid: true}
	}
	const stmt = `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, COALESCE($4, now()), now())
		ON CONFLICT (collection, id) DO UPDATE SET
		    data       = excluded.data,
		    updated_at = now()`
	if _, err := q.ExecContext(ctx, stmt, collection, doc.ID, string(data), createdAt); err != nil {
		return fmt.Errorf("setting %s/%s: %w", collection, doc.ID, classify(err))
	}
	return nil
}

// column maps a query field to its SQL expression, appending the parameter
// it needs (if any) to args.
func column(field string, args *[]any) string {
	switch field {
	case model.FieldID:
		return "id"
	case model.FieldCreatedAt:
		return "created_at"
	case model.FieldUpdatedAt:
		return "updated_at"
	}
	*args = append(*args, field)
	return fmt.Sprintf("data->>$%d", len(*args))
}

func buildQuery(collection string, q remote.Query) (string, []any) {
	args := []any{collection}
	var b strings.Builder
	b.WriteString(`SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1`)

	for _, f := range q.Filters {
		col := column(f.Field, &args)
		switch f.Field {
		case model.FieldCreatedAt, model.FieldUpdatedAt:
			args = append(args, model.FromMillis(toMillis(f.Value)))
			fmt.Fprintf(&b, " AND %s %s $%d", col, sqlOp(f.Op), len(args))
		default:
			args = append(args, fmt.Sprint(f.Value))
			if isNumeric(f.Value) {
				fmt.Fprintf(&b, " AND (%s)::numeric %s $%d::numeric", col, sqlOp(f.Op), len(args))
			} else {
				fmt.Fprintf(&b, " AND %s %s $%d", col, sqlOp(f.Op), len(args))
			}
		}
	}

	if q.OrderBy != nil {
		dir := "ASC"
		if q.OrderBy.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s, id", column(q.OrderBy.Field, &args), dir)
	} else {
		b.WriteString(" ORDER BY created_at, id")
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

func sqlOp(op remote.Op) string {
	if op == remote.OpEq {
		return "="
	}
	return string(op)
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return true
	}
	return false
}

func toMillis(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case time.Time:
		return model.Millis(n)
	}
	return 0
}

// classify maps retryable PostgreSQL errors onto remote.ErrConflict.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%s: %w", pgErr.Message, remote.ErrConflict)
		}
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (model.Document, error) {
	var (
		doc       model.Document
		data      []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := s.Scan(&doc.ID, &data, &createdAt, &updatedAt); err != nil {
		return model.Document{}, err
	}
	fields, err := model.UnmarshalFields(data)
	if err != nil {
		return model.Document{}, err
	}
	doc.Fields = fields
	doc.CreatedAt = model.Millis(createdAt)
	doc.UpdatedAt = model.Millis(updatedAt)
	return doc, nil
}
