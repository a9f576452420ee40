package protocol

import "github.com/google/uuid"

// ServerID identifies a single running language server instance. Two
// instances of the same binary get distinct IDs; a restarted server is a new
// instance and its cached data must be purged under the old ID.
type ServerID string

// NewServerID mints an identifier for a freshly started server instance.
func NewServerID() ServerID {
	return ServerID(uuid.NewString())
}
