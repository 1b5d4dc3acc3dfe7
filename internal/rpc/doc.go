// Package rpc manages the authenticated session against the backend's
// JSON-RPC endpoint and dispatches calls over it.
//
// The session lifecycle is login, periodic renewal while calls keep
// arriving, and logout on shutdown. A session older than the renewal
// threshold is renewed before the next call is sent; a failed renewal never
// leaves a stale-but-believed-valid session behind, it forces a fresh login
// instead.
//
// The wire transport itself is an external collaborator behind the
// Transport interface; this package injects the session token, bounds
// concurrency per connection through a worker gate, and normalizes all
// transport failures into CallError values carrying the failing method.
//
// Backend script sources are loaded from disk once per script name,
// cached for the process lifetime, and dispatched with named placeholders
// substituted.
package rpc
