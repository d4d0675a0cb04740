// Package booking holds the only strongly consistent writes in pawsync:
// creating a booking against a bookable unit's availability counter, and
// moving a booking through its lifecycle. Both run as remote transactions
// first and update the local cache only after commit.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/njoerd114/pawsync/internal/model"
	"github.com/njoerd114/pawsync/internal/remote"
	"github.com/njoerd114/pawsync/internal/retry"
)

const (
	otelScope         = "pawsync/booking"
	metricCreated     = "pawsync.booking.created"
	metricExhausted   = "pawsync.booking.capacity_exhausted"
	metricConflicts   = "pawsync.booking.conflicts"
	metricTransitions = "pawsync.booking.transitions"
)

// Transactor runs remote transactions. Implemented by every remote.Store.
type Transactor interface {
	Transaction(ctx context.Context, fn func(tx remote.Tx) error) error
}

// LocalWriter is the cache write used after a commit.
type LocalWriter interface {
	Put(ctx context.Context, collection string, doc model.Document) error
}

// runner is shared by the coordinator and the lifecycle.
type runner struct {
	remote Transactor
	local  LocalWriter
	policy retry.Policy
	log    *slog.Logger
	now    func() time.Time

	cntCreated     metric.Int64Counter
	cntExhausted   metric.Int64Counter
	cntConflicts   metric.Int64Counter
	cntTransitions metric.Int64Counter
}

func newRunner(rem Transactor, local LocalWriter, policy retry.Policy, logger *slog.Logger) runner {
	meter := otel.Meter(otelScope)
	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}
	return runner{
		remote: rem,
		local:  local,
		policy: policy,
		log:    logger,
		now:    time.Now,

		cntCreated:     mustCounter(metricCreated, "Number of bookings created"),
		cntExhausted:   mustCounter(metricExhausted, "Number of booking attempts rejected for lack of capacity"),
		cntConflicts:   mustCounter(metricConflicts, "Number of booking transactions aborted by a concurrent write"),
		cntTransitions: mustCounter(metricTransitions, "Number of booking status transitions"),
	}
}

// transact runs fn in a remote transaction, retrying it while commits
// conflict. Other errors are returned after the first attempt.
func (r *runner) transact(ctx context.Context, op string, fn func(tx remote.Tx) error) error {
	return retry.Do(ctx, r.policy, func(err error) bool {
		if !errors.Is(err, model.ErrConflict) {
			return false
		}
		r.cntConflicts.Add(ctx, 1)
		r.log.Debug("transaction conflict, retrying", "op", op, "error", err)
		return true
	}, func() error {
		return r.remote.Transaction(ctx, fn)
	})
}

// cache writes a committed booking to the local store. The remote commit
// already happened, so a failure here is logged only.
func (r *runner) cache(ctx context.Context, b model.Booking) {
	doc, err := model.Encode(b)
	if err == nil {
		err = r.local.Put(ctx, model.CollBookings, doc)
	}
	if err != nil {
		r.log.Warn("caching committed booking", "booking_id", b.ID, "error", err)
	}
}

// cacheUnit replaces the cached copy of a unit whose counter was committed,
// so later local edits of the unit start from the committed value.
func (r *runner) cacheUnit(ctx context.Context, doc model.Document) {
	if doc.ID == "" {
		return
	}
	if err := r.local.Put(ctx, model.CollBookableUnits, doc); err != nil {
		r.log.Warn("caching committed unit", "unit_id", doc.ID, "error", err)
	}
}

// getUnit reads a bookable unit inside tx. A missing unit is
// model.ErrResourceNotFound.
func getUnit(ctx context.Context, tx remote.Tx, id string) (model.BookableUnit, model.Document, error) {
	doc, err := tx.Get(ctx, model.CollBookableUnits, id)
	if errors.Is(err, model.ErrNotFound) {
		return model.BookableUnit{}, doc, fmt.Errorf("bookable unit %q: %w", id, model.ErrResourceNotFound)
	}
	if err != nil {
		return model.BookableUnit{}, doc, fmt.Errorf("reading bookable unit %q: %w", id, err)
	}
	unit, err := model.Decode[model.BookableUnit](doc)
	if err != nil {
		return model.BookableUnit{}, doc, err
	}
	return unit, doc, nil
}

// setAvailable writes the unit with its new counter and returns the
// written document.
func setAvailable(ctx context.Context, tx remote.Tx, doc model.Document, available int) (model.Document, error) {
	out := doc.Merge(map[string]any{"available": available})
	if err := tx.Set(ctx, model.CollBookableUnits, out); err != nil {
		return model.Document{}, fmt.Errorf("writing bookable unit %q: %w", doc.ID, err)
	}
	return out, nil
}
