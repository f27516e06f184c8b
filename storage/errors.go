package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a ticket is not found.
	ErrNotFound = errors.New("ticket not found")
)
