package model

import "errors"

var (
	// ErrNotFound means the requested id is absent in the queried store.
	ErrNotFound = errors.New("not found")

	// ErrResourceNotFound means a booking referenced a bookable unit that
	// does not exist.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrCapacityExhausted means the bookable unit has no slot left.
	ErrCapacityExhausted = errors.New("capacity exhausted")

	// ErrConflict means a remote transaction was aborted because a document
	// it read was modified concurrently.
	ErrConflict = errors.New("transaction conflict")

	// ErrRemoteUnavailable wraps backend failures during a blocking fetch.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrBackgroundSync marks failures of fire-and-forget pushes and
	// reconciliations. They are logged and observed, never returned.
	ErrBackgroundSync = errors.New("background sync failure")

	// ErrInvalidTransition means a booking status change is not allowed.
	ErrInvalidTransition = errors.New("invalid booking transition")
)
