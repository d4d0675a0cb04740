package booking

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

// Request describes a booking to create.
type Request struct {
	UnitID      string
	OwnerID     string
	PetID       string
	Dates       model.DateRange
	AmountCents int64
}

func (r Request) validate() error {
	if r.UnitID == "" {
		return errors.New("unit id is required")
	}
	if r.OwnerID == "" {
		return errors.New("owner id is required")
	}
	if r.AmountCents < 0 {
		return fmt.Errorf("amount must not be negative, got %d", r.AmountCents)
	}
	return r.Dates.Validate()
}

// Coordinator creates bookings. Creating one decrements the unit's
// available counter in the same remote transaction, so concurrent callers
// can never book more slots than the unit has.
type Coordinator struct {
	runner
}

// NewCoordinator creates a Coordinator. policy bounds the retries of
// conflicting transactions; it needs more attempts than the number of
// callers expected to race for one unit.
func NewCoordinator(rem Transactor, local LocalWriter, policy retry.Policy, logger *slog.Logger) *Coordinator {
	return &Coordinator{runner: newRunner(rem, local, policy, logger)}
}

// CreateBooking reserves one slot of req.UnitID and returns the new pending
// booking. It fails with model.ErrResourceNotFound if the unit does not
// exist, model.ErrCapacityExhausted if it has no slot left (nothing is
// written), or model.ErrConflict if the transaction kept conflicting.
func (c *Coordinator) CreateBooking(ctx context.Context, req Request) (model.Booking, error) {
	if err := req.validate(); err != nil {
		return model.Booking{}, fmt.Errorf("invalid booking request: %w", err)
	}

	id := uuid.NewString()
	var (
		booking model.Booking
		unitOut model.Document
	)

	err := c.transact(ctx, "create", func(tx remote.Tx) error {
		unit, unitDoc, err := getUnit(ctx, tx, req.UnitID)
		if err != nil {
			return err
		}
		if unit.Available <= 0 {
			return fmt.Errorf("bookable unit %q: %w", req.UnitID, model.ErrCapacityExhausted)
		}
		unitOut, err = setAvailable(ctx, tx, unitDoc, unit.Available-1)
		if err != nil {
			return err
		}

		now := c.now().UnixMilli()
		booking = model.Booking{
			Meta:        model.Meta{ID: id, CreatedAt: now, UpdatedAt: now},
			OwnerID:     req.OwnerID,
			PetID:       req.PetID,
			KennelID:    unit.KennelID,
			UnitID:      req.UnitID,
			StartDate:   req.Dates.Start,
			EndDate:     req.Dates.End,
			Status:      model.StatusPending,
			AmountCents: req.AmountCents,
		}
		doc, err := model.Encode(booking)
		if err != nil {
			return err
		}
		if err := tx.Set(ctx, model.CollBookings, doc); err != nil {
			return fmt.Errorf("writing booking: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrCapacityExhausted) {
			c.cntExhausted.Add(ctx, 1)
		}
		return model.Booking{}, err
	}

	c.cntCreated.Add(ctx, 1)
	c.log.Info("booking created", "booking_id", booking.ID, "unit_id", booking.UnitID, "owner_id", booking.OwnerID)
	c.cache(ctx, booking)
	c.cacheUnit(ctx, unitOut)
	return booking, nil
}
