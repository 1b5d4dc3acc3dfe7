package central

import "errors"

// Domain errors for the central package.
var (
	// ErrUnknownDevice is returned when an address does not resolve to a
	// managed device.
	ErrUnknownDevice = errors.New("central: unknown device")

	// ErrBadScriptResult is returned when a bulk-load script returns a
	// shape that cannot be decoded into values.
	ErrBadScriptResult = errors.New("central: unexpected script result")
)
