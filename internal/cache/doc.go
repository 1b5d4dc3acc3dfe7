// Package cache keeps entity values available with minimal redundant
// backend traffic.
//
// Two tiers back every read: a central tier shared across devices, bulk
// loaded from the backend, keyed by interface, channel address and
// parameter; and a per-device tier keyed by paramset, channel address and
// parameter, filled by individual fetches. Both tiers apply the same TTL.
//
// A miss falls through to a live fetch. The result is written back whatever
// the outcome: a failed fetch caches an unavailable marker so a broken
// parameter retries at most once per TTL window.
//
// Concurrent reads on one device are serialized through a single-flight
// admission gate per device, so a burst of readers during device
// initialisation triggers at most one outstanding fetch at a time while
// other devices proceed independently.
package cache
