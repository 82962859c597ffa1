package storage

import "errors"

var (
	// ErrNotFound is returned when a record is absent or soft-deleted.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists is returned when an active record with the same natural key exists.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrConflict is returned when an update carries a stale expected version.
	ErrConflict = errors.New("resource version conflict")

	// ErrInvalidParent is returned when a feature parent is missing, self-referencing or would create a cycle.
	ErrInvalidParent = errors.New("invalid parent feature")
)
