package model

import "fmt"

// BookingStatus is the lifecycle state of a booking. The states are ordered:
// pending → confirmed → checked-in → checked-out, and cancelled is reachable
// from any non-terminal state.
type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusCheckedIn  BookingStatus = "checked-in"
	StatusCheckedOut BookingStatus = "checked-out"
	StatusCancelled  BookingStatus = "cancelled"
)

var statusRank = map[BookingStatus]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusCheckedIn:  2,
	StatusCheckedOut: 3,
	StatusCancelled:  4,
}

// ParseBookingStatus validates s as a booking status.
func ParseBookingStatus(s string) (BookingStatus, error) {
	st := BookingStatus(s)
	if _, ok := statusRank[st]; !ok {
		return "", fmt.Errorf("unknown booking status %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether no further transition is possible.
func (s BookingStatus) Terminal() bool {
	return s == StatusCheckedOut || s == StatusCancelled
}

// Occupies reports whether a booking in this status holds one slot of its
// unit's capacity.
func (s BookingStatus) Occupies() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCheckedIn:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is allowed.
func (s BookingStatus) CanTransition(next BookingStatus) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return statusRank[next] == statusRank[s]+1
}

// DateRange is a half-open stay interval in milliseconds since epoch.
type DateRange struct {
	Start int64
	End   int64
}

// Validate checks that the range is non-empty.
func (r DateRange) Validate() error {
	if r.Start <= 0 || r.End <= 0 {
		return fmt.Errorf("date range %d..%d must have both ends set", r.Start, r.End)
	}
	if r.End <= r.Start {
		return fmt.Errorf("date range end %d must be after start %d", r.End, r.Start)
	}
	return nil
}
