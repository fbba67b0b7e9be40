// Package ids generates sortable opaque identifiers for entities and events.
package ids

import "github.com/google/uuid"

// New returns a UUIDv7 string. V7 ids sort by creation time, which keeps
// outbox batches in insertion order when occurred_at ties. Falls back to a
// random UUID if the system clock is unusable.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
