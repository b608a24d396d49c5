package event

import "github.com/google/uuid"

// NewClientID generates a UUIDv7 idempotency key.
//
// UUIDv7 is time-ordered, which keeps keys roughly sorted with the
// events they stamp and makes remote-side index locality better than
// random v4 keys.
func NewClientID() string {
	return uuid.Must(uuid.NewV7()).String()
}
