package xid

import "github.com/google/uuid"

// New returns a time-ordered UUIDv7 string, falling back to a random v4 id
// when the v7 generator cannot read the clock sequence.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
