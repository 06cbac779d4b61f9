package app

import "github.com/google/uuid"

func newMessageID() string {
	return uuid.NewString()
}

// newSurrogateResourceID stands in for a backend that accepted a create call
// without returning an identifier yet.
func newSurrogateResourceID() string {
	return "pending-" + uuid.NewString()
}
