package model

// Collection names shared by the local cache and the remote store.
const (
	CollPets           = "pets"
	CollVaccines       = "vaccines"
	CollMedicalRecords = "medicalRecords"
	CollKennels        = "kennels"
	CollBookableUnits  = "bookableUnits"
	CollBookings       = "bookings"
	CollStayUpdates    = "stayUpdates"
	CollInvoices       = "invoices"
)

// Species of a pet.
type Species string

const (
	SpeciesDog   Species = "dog"
	SpeciesCat   Species = "cat"
	SpeciesOther Species = "other"
)

// Sex of a pet.
type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = "unknown"
)

// Pet is an owner's animal profile.
type Pet struct {
	Meta

	OwnerID   string  `json:"ownerId"`
	Name      string  `json:"name"`
	Species   Species `json:"species"`
	Breed     string  `json:"breed,omitempty"`
	Sex       Sex     `json:"sex,omitempty"`
	BirthDate int64   `json:"birthDate,omitempty"` // ms
	Microchip string  `json:"microchip,omitempty"`
	Notes     string  `json:"notes,omitempty"`
}

func (p Pet) WithMeta(m Meta) Pet { p.Meta = m; return p }

// Vaccine is a single administered vaccination.
type Vaccine struct {
	Meta

	PetID          string `json:"petId"`
	Name           string `json:"name"`
	AdministeredAt int64  `json:"administeredAt"`
	ExpiresAt      int64  `json:"expiresAt,omitempty"`
	Veterinarian   string `json:"veterinarian,omitempty"`
	BatchNumber    string `json:"batchNumber,omitempty"`
}

func (v Vaccine) WithMeta(m Meta) Vaccine { v.Meta = m; return v }

// MedicalRecord is a clinical history entry for a pet.
type MedicalRecord struct {
	Meta

	PetID        string `json:"petId"`
	Kind         string `json:"kind"` // consultation, surgery, medication, ...
	Title        string `json:"title"`
	Notes        string `json:"notes,omitempty"`
	RecordedAt   int64  `json:"recordedAt"`
	Veterinarian string `json:"veterinarian,omitempty"`
}

func (r MedicalRecord) WithMeta(m Meta) MedicalRecord { r.Meta = m; return r }

// Kennel is a boarding facility run by an operator.
type Kennel struct {
	Meta

	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Active  bool   `json:"active"`
}

func (k Kennel) WithMeta(m Meta) Kennel { k.Meta = m; return k }

// BookableUnit is a capacity-limited resource of a kennel, e.g. a run.
// Available must stay within [0, Capacity] and only changes through the
// booking coordinator or a manager edit.
type BookableUnit struct {
	Meta

	KennelID           string `json:"kennelId"`
	Name               string `json:"name"`
	Capacity           int    `json:"capacity"`
	Available          int    `json:"available"`
	PricePerNightCents int64  `json:"pricePerNightCents,omitempty"`
}

func (u BookableUnit) WithMeta(m Meta) BookableUnit { u.Meta = m; return u }

// Booking reserves one slot of a bookable unit for a date range.
type Booking struct {
	Meta

	OwnerID     string        `json:"ownerId"`
	PetID       string        `json:"petId,omitempty"`
	KennelID    string        `json:"kennelId,omitempty"`
	UnitID      string        `json:"unitId"`
	StartDate   int64         `json:"startDate"`
	EndDate     int64         `json:"endDate"`
	Status      BookingStatus `json:"status"`
	AmountCents int64         `json:"amountCents"`
}

func (b Booking) WithMeta(m Meta) Booking { b.Meta = m; return b }

// Dates returns the booking's date range.
func (b Booking) Dates() DateRange { return DateRange{Start: b.StartDate, End: b.EndDate} }

// StayUpdate is a note or photo posted by the kennel during a stay.
type StayUpdate struct {
	Meta

	BookingID string `json:"bookingId"`
	Kind      string `json:"kind"` // meal, walk, photo, note
	Message   string `json:"message"`
	PhotoURL  string `json:"photoUrl,omitempty"`
	PostedAt  int64  `json:"postedAt"`
}

func (s StayUpdate) WithMeta(m Meta) StayUpdate { s.Meta = m; return s }

// InvoiceStatus tracks payment of an issued invoice.
type InvoiceStatus string

const (
	InvoiceIssued InvoiceStatus = "issued"
	InvoicePaid   InvoiceStatus = "paid"
)

// Invoice is issued once per booking and treated as append-only.
type Invoice struct {
	Meta

	OwnerID     string        `json:"ownerId"`
	BookingID   string        `json:"bookingId"`
	Number      string        `json:"number"`
	AmountCents int64         `json:"amountCents"`
	Currency    string        `json:"currency"`
	IssuedAt    int64         `json:"issuedAt"`
	Status      InvoiceStatus `json:"status"`
}

func (i Invoice) WithMeta(m Meta) Invoice { i.Meta = m; return i }
