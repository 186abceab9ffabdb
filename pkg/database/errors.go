package database

import "errors"

var (
	// ErrNotFound is returned when a process or step row is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when attempting to persist a duplicate
	// correlation id.
	ErrAlreadyExists = errors.New("entity already exists")
)
