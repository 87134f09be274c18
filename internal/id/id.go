package id

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// Prefixes for the identifiers handed out by eventsock.
const (
	PrefixSession = "sess"
	PrefixSocket  = "sock"
)

// UUID generates a UUID v4 (random).
// Returns a string in the format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
func UUID() string {
	return uuid.NewString()
}

// Short generates a short random hex ID (16 characters).
func Short() string {
	u := uuid.New()
	return hex.EncodeToString(u[:8])
}

// Prefixed returns a Short ID joined to prefix with a dash.
// An empty prefix yields a bare Short ID.
func Prefixed(prefix string) string {
	if prefix == "" {
		return Short()
	}
	return prefix + "-" + Short()
}

// Session returns a new session identifier.
func Session() string {
	return Prefixed(PrefixSession)
}

// Socket returns a new socket (handler instance) identifier.
func Socket() string {
	return Prefixed(PrefixSocket)
}
