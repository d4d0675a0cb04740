package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/njoerd114/pawsync/internal/model"
	"github.com/njoerd114/pawsync/internal/remote/memstore"
)

func bookAndTransition(t *testing.T, capacity, available int) (*memstore.Store, *Lifecycle, *mockLocal, model.Booking) {
	t.Helper()
	store := memstore.New()
	seedUnit(t, store, "run-1", capacity, available)
	local := newMockLocal()
	b, err := NewCoordinator(store, local, testRetry, testLogger).CreateBooking(context.Background(), request("run-1"))
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	return store, NewLifecycle(store, local, testRetry, testLogger), local, b
}

func TestLifecycle_FullStayReleasesSlotAtCheckOut(t *testing.T) {
	ctx := context.Background()
	store, l, local, b := bookAndTransition(t, 5, 1)

	for _, step := range []func(context.Context, string) (model.Booking, error){l.Confirm, l.CheckIn} {
		if _, err := step(ctx, b.ID); err != nil {
			t.Fatalf("transition: %v", err)
		}
		if u := unitOf(t, store, "run-1"); u.Available != 0 {
			t.Fatalf("available = %d while the booking occupies the slot", u.Available)
		}
	}

	out, err := l.CheckOut(ctx, b.ID)
	if err != nil {
		t.Fatalf("CheckOut: %v", err)
	}
	if out.Status != model.StatusCheckedOut {
		t.Errorf("status = %s, want checked-out", out.Status)
	}
	if u := unitOf(t, store, "run-1"); u.Available != 1 {
		t.Errorf("available = %d after check-out, want 1", u.Available)
	}
	cached, ok := local.get(model.CollBookings, b.ID)
	if !ok || cached.Fields["status"] != string(model.StatusCheckedOut) {
		t.Errorf("cached booking = %+v", cached)
	}
}

func TestLifecycle_CancelReleasesSlot(t *testing.T) {
	store, l, _, b := bookAndTransition(t, 5, 1)

	if _, err := l.Cancel(context.Background(), b.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if u := unitOf(t, store, "run-1"); u.Available != 1 {
		t.Errorf("available = %d after cancel, want 1", u.Available)
	}
}

func TestLifecycle_ReleaseCappedAtCapacity(t *testing.T) {
	ctx := context.Background()
	store, l, _, b := bookAndTransition(t, 2, 2)

	// A manager edit restored the counter to full while the booking was live.
	seedUnit(t, store, "run-1", 2, 2)

	if _, err := l.Cancel(ctx, b.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if u := unitOf(t, store, "run-1"); u.Available != 2 {
		t.Errorf("available = %d, want capped at capacity 2", u.Available)
	}
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	ctx := context.Background()
	store, l, _, b := bookAndTransition(t, 5, 1)

	if _, err := l.CheckIn(ctx, b.ID); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("pending → checked-in: err = %v, want ErrInvalidTransition", err)
	}
	if _, err := l.Cancel(ctx, b.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := l.Cancel(ctx, b.ID); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("cancelling twice: err = %v, want ErrInvalidTransition", err)
	}
	if u := unitOf(t, store, "run-1"); u.Available != 1 {
		t.Errorf("available = %d, a rejected transition must not release again", u.Available)
	}
}

func TestLifecycle_UnknownBooking(t *testing.T) {
	l := NewLifecycle(memstore.New(), newMockLocal(), testRetry, testLogger)
	if _, err := l.Confirm(context.Background(), "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
