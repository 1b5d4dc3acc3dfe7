// Package store persists device descriptions and parameter descriptors in
// SQLite.
//
// The backend only hands out paramset descriptions over slow calls, so
// they are written here once per device and read back at startup to
// rebuild the device model without touching the backend. A device row
// owns its descriptor rows; replacing a device replaces all of them in
// one transaction.
package store
