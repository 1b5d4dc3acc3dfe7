package entity

import "errors"

// Domain errors for the entity package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, entity.ErrDeviceExists) {
//	    // handle duplicate case
//	}
var (
	// ErrDeviceExists is returned when adding a device whose address is
	// already registered.
	ErrDeviceExists = errors.New("entity: device already exists")

	// ErrDeviceNotFound is returned when a device address does not exist.
	ErrDeviceNotFound = errors.New("entity: device not found")

	// ErrEntityNotFound is returned when an entity identity does not exist
	// on a device.
	ErrEntityNotFound = errors.New("entity: not found")

	// ErrInvalidTemplate is returned when a template registration is
	// structurally unusable (no primary channel, no fields at all).
	ErrInvalidTemplate = errors.New("entity: invalid template")

	// ErrInvalidOverride is returned for a malformed override file line.
	// Callers log it and continue; it never aborts the load.
	ErrInvalidOverride = errors.New("entity: invalid override line")
)
