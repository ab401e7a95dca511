// Package hub implements the session registry for push viewers.
//
// The registry is the single source of truth for connected viewers. It fans
// each broadcast snapshot out to every session concurrently, isolates
// per-session failures and removes failed sessions.
//
// Delivery guarantees:
//   - a session never receives a frame after Unregister has returned
//   - frames reach a given session in sequence order; stale frames are skipped
//   - a new session immediately receives the most recent frame, if any
package hub
