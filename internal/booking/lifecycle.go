package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/njoerd114/pawsync/internal/model"
	"github.com/njoerd114/pawsync/internal/remote"
	"github.com/njoerd114/pawsync/internal/retry"
)

// Lifecycle moves bookings between statuses.
type Lifecycle struct {
	runner
}

// NewLifecycle creates a Lifecycle.
func NewLifecycle(rem Transactor, local LocalWriter, policy retry.Policy, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{runner: newRunner(rem, local, policy, logger)}
}

// Transition sets the status of bookingID to next. When the booking stops
// occupying a slot (checked-out or cancelled) the slot is returned to its
// unit in the same transaction, never raising available above capacity.
func (l *Lifecycle) Transition(ctx context.Context, bookingID string, next model.BookingStatus) (model.Booking, error) {
	var (
		booking model.Booking
		unitOut model.Document
	)

	err := l.transact(ctx, "transition", func(tx remote.Tx) error {
		doc, err := tx.Get(ctx, model.CollBookings, bookingID)
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("booking %q: %w", bookingID, model.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("reading booking %q: %w", bookingID, err)
		}
		b, err := model.Decode[model.Booking](doc)
		if err != nil {
			return err
		}
		if !b.Status.CanTransition(next) {
			return fmt.Errorf("booking %q %s → %s: %w", bookingID, b.Status, next, model.ErrInvalidTransition)
		}

		unitOut = model.Document{}
		if b.Status.Occupies() && !next.Occupies() {
			if unitOut, err = l.release(ctx, tx, b.UnitID); err != nil {
				return err
			}
		}

		b.Status = next
		b.UpdatedAt = l.now().UnixMilli()
		out, err := model.Encode(b)
		if err != nil {
			return err
		}
		if err := tx.Set(ctx, model.CollBookings, out); err != nil {
			return fmt.Errorf("writing booking %q: %w", bookingID, err)
		}
		booking = b
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}

	l.cntTransitions.Add(ctx, 1)
	l.log.Info("booking transitioned", "booking_id", bookingID, "status", next)
	l.cache(ctx, booking)
	l.cacheUnit(ctx, unitOut)
	return booking, nil
}

// release gives one slot back to unitID and returns the written unit. A
// unit that no longer exists has nothing to release.
func (l *Lifecycle) release(ctx context.Context, tx remote.Tx, unitID string) (model.Document, error) {
	unit, doc, err := getUnit(ctx, tx, unitID)
	if errors.Is(err, model.ErrResourceNotFound) {
		l.log.Warn("releasing slot of missing unit", "unit_id", unitID)
		return model.Document{}, nil
	}
	if err != nil {
		return model.Document{}, err
	}
	return setAvailable(ctx, tx, doc, min(unit.Available+1, unit.Capacity))
}

// Confirm moves a pending booking to confirmed.
func (l *Lifecycle) Confirm(ctx context.Context, bookingID string) (model.Booking, error) {
	return l.Transition(ctx, bookingID, model.StatusConfirmed)
}

// CheckIn moves a confirmed booking to checked-in.
func (l *Lifecycle) CheckIn(ctx context.Context, bookingID string) (model.Booking, error) {
	return l.Transition(ctx, bookingID, model.StatusCheckedIn)
}

// CheckOut ends a stay and releases its slot.
func (l *Lifecycle) CheckOut(ctx context.Context, bookingID string) (model.Booking, error) {
	return l.Transition(ctx, bookingID, model.StatusCheckedOut)
}

// Cancel cancels a non-terminal booking and releases its slot.
func (l *Lifecycle) Cancel(ctx context.Context, bookingID string) (model.Booking, error) {
	return l.Transition(ctx, bookingID, model.StatusCancelled)
}
