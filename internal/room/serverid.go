package room

import "github.com/google/uuid"

// ServerID generates a process-wide identifier used to suppress echo of this
// instance's own bus-published events (spec.md §4.3/§9).
func ServerID() string {
	return uuid.New().String()
}
