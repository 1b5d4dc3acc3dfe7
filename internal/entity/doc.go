// Package entity resolves the backend's raw parameter model into typed,
// deduplicated, usage-classified entities.
//
// The backend exposes devices as flat lists of parameters spread across
// channels and paramsets. This package decides which of those parameters
// become entities at all (visibility rules and user overrides), what kind of
// entity each one is (kind inference over the capability bitmask and declared
// type), and how groups of related parameters across channels combine into a
// single composite entity (templates with channel rebasing).
//
// The materializer drives the whole pass per device and is idempotent:
// running it twice against the same descriptors yields the same entity set.
//
// # Components
//
//   - Visibility: ignore/un-ignore/hidden decisions per parameter
//   - Classifier: parameter descriptor to entity kind or event
//   - TemplateRegistry: composite templates and device-type lookup
//   - Materializer: the per-device resolution pass
//   - Device: the per-device record holding descriptors and entities
//
// All resolution logic is synchronous and free of I/O; live values are the
// concern of the cache package.
package entity
