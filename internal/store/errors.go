package store

import "errors"

var (
	// ErrConstraint is returned when a write collides with a primary key or a
	// unique index, e.g. adding a user whose email digest is already taken.
	ErrConstraint = errors.New("constraint violation")

	ErrUnknownStore = errors.New("unknown store")
	ErrUnknownIndex = errors.New("unknown index")

	// ErrMissingKey means the record lacks the collection's key field.
	ErrMissingKey = errors.New("record has no key")
)
