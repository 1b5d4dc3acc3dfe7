package store

import "errors"

// Domain errors for the store package.
var (
	// ErrNotFound is returned when no device with the given address has
	// been persisted.
	ErrNotFound = errors.New("store: device not found")
)
