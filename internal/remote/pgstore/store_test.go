package pgstore

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/njoerd114/pawsync/internal/model"
	"github.com/njoerd114/pawsync/internal/remote"
)

func TestBuildQuery_ScopeFilter(t *testing.T) {
	stmt, args := buildQuery(model.CollVaccines, remote.Query{
		Filters: []remote.Filter{remote.Where("petId", "pet-1")},
	})

	want := `SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1 AND data->>$2 = $3 ORDER BY created_at, id`
	if stmt != want {
		t.Errorf("stmt =\n%s\nwant\n%s", stmt, want)
	}
	if len(args) != 3 || args[0] != model.CollVaccines || args[1] != "petId" || args[2] != "pet-1" {
		t.Errorf("args = %v", args)
	}
}

func TestBuildQuery_CreatedAtOrderAndLimit(t *testing.T) {
	stmt, args := buildQuery(model.CollInvoices, remote.Query{
		Filters: []remote.Filter{
			remote.Where("ownerId", "o-1"),
			{Field: model.FieldCreatedAt, Op: remote.OpGt, Value: int64(1_700_000_000_000)},
		},
		OrderBy: &remote.Order{Field: model.FieldCreatedAt},
		Limit:   50,
	})

	want := `SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1 AND data->>$2 = $3 AND created_at > $4 ORDER BY created_at ASC, id LIMIT $5`
	if stmt != want {
		t.Errorf("stmt =\n%s\nwant\n%s", stmt, want)
	}
	if len(args) != 5 {
		t.Fatalf("args = %v, want 5 entries", args)
	}
	ts, ok := args[3].(time.Time)
	if !ok {
		t.Fatalf("createdAt arg = %T, want time.Time", args[3])
	}
	if ts.UnixMilli() != 1_700_000_000_000 {
		t.Errorf("createdAt arg = %v, want 1700000000000ms", ts)
	}
	if args[4] != 50 {
		t.Errorf("limit arg = %v, want 50", args[4])
	}
}

func TestBuildQuery_NumericComparison(t *testing.T) {
	stmt, _ := buildQuery(model.CollBookableUnits, remote.Query{
		Filters: []remote.Filter{{Field: "available", Op: remote.OpGt, Value: 0}},
	})
	want := `SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1 AND (data->>$2)::numeric > $3::numeric ORDER BY created_at, id`
	if stmt != want {
		t.Errorf("stmt =\n%s\nwant\n%s", stmt, want)
	}
}

func TestClassify_SerializationFailureIsConflict(t *testing.T) {
	err := fmt.Errorf("commit: %w", &pgconn.PgError{Code: codeSerializationFailure, Message: "could not serialize access"})
	if !errors.Is(classify(err), remote.ErrConflict) {
		t.Errorf("classify(%v) is not ErrConflict", err)
	}

	deadlock := &pgconn.PgError{Code: codeDeadlockDetected}
	if !errors.Is(classify(deadlock), remote.ErrConflict) {
		t.Error("deadlock not classified as conflict")
	}
}

func TestClassify_OtherErrorsPassThrough(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	if errors.Is(classify(unique), remote.ErrConflict) {
		t.Error("unique violation classified as conflict")
	}
	sentinel := errors.New("boom")
	if classify(sentinel) != sentinel {
		t.Error("plain error was rewrapped")
	}
}
