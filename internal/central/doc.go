// Package central orchestrates the device model.
//
// It owns the visibility rules, templates and classifier, materialises
// devices as they arrive from the backend, keeps one value cache per
// device plus the shared bulk-loaded tier, and routes reads and writes
// between callers, the caches and the backend session.
//
// Devices are persisted to the descriptor store on arrival and restored
// from it at startup, so a restart does not need to re-read every paramset
// description from the backend.
package central
