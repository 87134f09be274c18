// Package id provides unique identifier generation utilities.
//
// This is the canonical source for ID generation across the eventsock codebase.
// Every identifier is derived from a random (version 4) UUID from github.com/google/uuid:
//
//   - UUID: the canonical 36-character form
//   - Short: 16 hex characters for log lines and wire messages where brevity matters
//   - Prefixed: a Short ID with a kind prefix, e.g. "sess-3f2a9c0d41e84b7a"
package id
