package cache

import "errors"

// Domain errors for the cache package.
var (
	// ErrUnavailable is returned when a value could not be fetched from
	// the backend. The failure itself is cached, so repeated lookups
	// within the TTL window return this without hitting the backend.
	ErrUnavailable = errors.New("cache: value unavailable")
)
