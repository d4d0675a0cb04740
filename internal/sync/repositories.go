package sync

import (
	"context"
	"fmt"
	"sort"

	"github.com/njoerd114/pawsync/internal/model"
)

// Scope fields of each collection.
var scopeFields = map[string]string{
	model.CollPets:           "ownerId",
	model.CollVaccines:       "petId",
	model.CollMedicalRecords: "petId",
	model.CollKennels:        "ownerId",
	model.CollBookableUnits:  "kennelId",
	model.CollBookings:       "ownerId",
	model.CollStayUpdates:    "bookingId",
	model.CollInvoices:       "ownerId",
}

// ScopeField returns the field that partitions collection for sync.
func ScopeField(collection string) (string, bool) {
	f, ok := scopeFields[collection]
	return f, ok
}

// Collection is the type-erased view of a repository used by tooling that
// works on collection names rather than entity types.
type Collection interface {
	Reconcilable
	Policy() Policy
	ReadDocuments(ctx context.Context, scope string) ([]model.Document, error)
	Evict(ctx context.Context, id string) error
}

// Repositories bundles one repository per entity type. Bookings are read,
// reconciled and updated here, but created only through the booking
// coordinator; Bookings.Create fails with [ErrCoordinatedCreate].
type Repositories struct {
	Pets           *Repository[model.Pet]
	Vaccines       *Repository[model.Vaccine]
	MedicalRecords *Repository[model.MedicalRecord]
	Kennels        *Repository[model.Kennel]
	BookableUnits  *Repository[model.BookableUnit]
	Bookings       *Repository[model.Booking]
	StayUpdates    *Repository[model.StayUpdate]
	Invoices       *Repository[model.Invoice]

	engine *Engine
	byName map[string]Collection
}

// NewRepositories builds every repository on engine. policies is usually
// [DefaultPolicies], possibly with [WithIntervals] applied; collections
// missing from it fall back to the defaults.
func NewRepositories(engine *Engine, policies map[string]Policy) *Repositories {
	defaults := DefaultPolicies()
	bind := func(collection string) Binding {
		p, ok := policies[collection]
		if !ok {
			p = defaults[collection]
		}
		field, _ := ScopeField(collection)
		return Binding{
			Collection:  collection,
			ScopeField:  field,
			Policy:      p,
			Coordinated: collection == model.CollBookings,
		}
	}

	rs := &Repositories{
		Pets:           NewRepository[model.Pet](engine, bind(model.CollPets)),
		Vaccines:       NewRepository[model.Vaccine](engine, bind(model.CollVaccines)),
		MedicalRecords: NewRepository[model.MedicalRecord](engine, bind(model.CollMedicalRecords)),
		Kennels:        NewRepository[model.Kennel](engine, bind(model.CollKennels)),
		BookableUnits:  NewRepository[model.BookableUnit](engine, bind(model.CollBookableUnits)),
		Bookings:       NewRepository[model.Booking](engine, bind(model.CollBookings)),
		StayUpdates:    NewRepository[model.StayUpdate](engine, bind(model.CollStayUpdates)),
		Invoices:       NewRepository[model.Invoice](engine, bind(model.CollInvoices)),
		engine:         engine,
	}
	rs.byName = map[string]Collection{
		model.CollPets:           rs.Pets,
		model.CollVaccines:       rs.Vaccines,
		model.CollMedicalRecords: rs.MedicalRecords,
		model.CollKennels:        rs.Kennels,
		model.CollBookableUnits:  rs.BookableUnits,
		model.CollBookings:       rs.Bookings,
		model.CollStayUpdates:    rs.StayUpdates,
		model.CollInvoices:       rs.Invoices,
	}
	return rs
}

// ByName returns the repository for collection.
func (rs *Repositories) ByName(collection string) (Collection, error) {
	c, ok := rs.byName[collection]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q (known: %v)", collection, rs.Names())
	}
	return c, nil
}

// Names returns the collection names in sorted order.
func (rs *Repositories) Names() []string {
	names := make([]string, 0, len(rs.byName))
	for n := range rs.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// WatchStay keeps the stay updates of bookingID fresh while a view of the
// booking is open. The caller must Stop the returned Watch when the view
// closes.
func (rs *Repositories) WatchStay(ctx context.Context, bookingID string) *Watch {
	interval := rs.StayUpdates.Policy().Interval
	if interval <= 0 {
		interval = Interval15m
	}
	return rs.engine.scheduler.Every(ctx, rs.StayUpdates, bookingID, interval)
}
