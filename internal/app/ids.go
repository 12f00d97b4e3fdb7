package app

import "github.com/google/uuid"

// NewID returns a fresh identifier for a domain entity.
func NewID() string {
	return uuid.NewString()
}
