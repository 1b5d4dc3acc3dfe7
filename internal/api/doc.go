// Package api implements the read-mostly diagnostics HTTP API.
//
// This package provides:
//   - REST endpoints for inspecting managed devices, entities and
//     composites
//   - Cached value reads and direct parameter writes for commissioning
//   - A health endpoint reporting backend connection state
//   - Middleware stack (request ID, logging, recovery, body limits)
//
// # Architecture
//
// The server is a thin layer over the central orchestrator. It never
// talks to the backend itself; reads go through the value cache and
// writes through the orchestrator's write-through path, so API traffic
// observes exactly what MQTT consumers observe.
//
// The primary integration surface of the service is MQTT; this API
// exists for diagnostics, commissioning and scripting against a local
// installation. It carries no authentication and must not be exposed
// beyond the local network.
package api
