package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/njoerd114/pawsync/internal/model"
	"github.com/njoerd114/pawsync/internal/remote"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestGet_NotFound(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), model.CollPets, "nope")
	if !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSet_AssignsServerTimestamps(t *testing.T) {
	s := New(WithClock(fixedClock(5_000)))
	ctx := context.Background()

	if err := s.Set(ctx, model.CollPets, model.Document{ID: "pet-1", Fields: map[string]any{"name": "Rex"}}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, model.CollPets, "pet-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CreatedAt != 5_000 || got.UpdatedAt != 5_000 {
		t.Errorf("timestamps = %d/%d, want 5000/5000", got.CreatedAt, got.UpdatedAt)
	}
}

func TestSet_KeepsCallerCreatedAt(t *testing.T) {
	s := New(WithClock(fixedClock(9_000)))
	ctx := context.Background()

	doc := model.Document{ID: "inv-1", Fields: map[string]any{}, CreatedAt: 1_234}
	if err := s.Set(ctx, model.CollInvoices, doc); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, _ := s.Get(ctx, model.CollInvoices, "inv-1")
	if got.CreatedAt != 1_234 {
		t.Errorf("CreatedAt = %d, want 1234", got.CreatedAt)
	}
	if got.UpdatedAt != 9_000 {
		t.Errorf("UpdatedAt = %d, want 9000", got.UpdatedAt)
	}
}

func TestAdd_ServerAssignsID(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, err := s.Add(ctx, model.CollBookableUnits, map[string]any{"name": "Run 1"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == "" {
		t.Fatal("Add returned empty id")
	}
	if _, err := s.Get(ctx, model.CollBookableUnits, id); err != nil {
		t.Errorf("Get after Add: %v", err)
	}
}

func TestQuery_FiltersCollection(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Set(ctx, model.CollVaccines, model.Document{ID: "v1", Fields: map[string]any{"petId": "pet-1"}})
	_ = s.Set(ctx, model.CollVaccines, model.Document{ID: "v2", Fields: map[string]any{"petId": "pet-2"}})
	_ = s.Set(ctx, model.CollMedicalRecords, model.Document{ID: "m1", Fields: map[string]any{"petId": "pet-1"}})

	got, err := s.Query(ctx, model.CollVaccines, remote.Query{Filters: []remote.Filter{remote.Where("petId", "pet-1")}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].ID != "v1" {
		t.Errorf("got %+v, want only v1", got)
	}
}

func TestTransaction_CommitsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Set(ctx, model.CollBookableUnits, model.Document{ID: "run-1", Fields: map[string]any{"available": 2}})

	err := s.Transaction(ctx, func(tx remote.Tx) error {
		doc, err := tx.Get(ctx, model.CollBookableUnits, "run-1")
		if err != nil {
			return err
		}
		doc.Fields["available"] = 1
		return tx.Set(ctx, model.CollBookableUnits, doc)
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	got, _ := s.Get(ctx, model.CollBookableUnits, "run-1")
	if got.Fields["available"] != 1 {
		t.Errorf("available = %v, want 1", got.Fields["available"])
	}
}

func TestTransaction_ReadYourWrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx remote.Tx) error {
		if err := tx.Set(ctx, model.CollBookings, model.Document{ID: "bk-1", Fields: map[string]any{"status": "pending"}}); err != nil {
			return err
		}
		doc, err := tx.Get(ctx, model.CollBookings, "bk-1")
		if err != nil {
			return err
		}
		if doc.Fields["status"] != "pending" {
			t.Errorf("status = %v, want pending", doc.Fields["status"])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
}

func TestTransaction_ConflictOnConcurrentWrite(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Set(ctx, model.CollBookableUnits, model.Document{ID: "run-1", Fields: map[string]any{"available": 1}})

	err := s.Transaction(ctx, func(tx remote.Tx) error {
		doc, err := tx.Get(ctx, model.CollBookableUnits, "run-1")
		if err != nil {
			return err
		}
		// Another writer commits between our read and our commit.
		if err := s.Set(ctx, model.CollBookableUnits, model.Document{ID: "run-1", Fields: map[string]any{"available": 0}}); err != nil {
			return err
		}
		doc.Fields["available"] = 0
		return tx.Set(ctx, model.CollBookableUnits, doc)
	})
	if !errors.Is(err, remote.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestTransaction_ErrorAbortsWithoutWriting(t *testing.T) {
	s := New()
	ctx := context.Background()
	sentinel := errors.New("abort")

	err := s.Transaction(ctx, func(tx remote.Tx) error {
		_ = tx.Set(ctx, model.CollBookings, model.Document{ID: "bk-1"})
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
	if _, err := s.Get(ctx, model.CollBookings, "bk-1"); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("aborted write became visible: %v", err)
	}
}
