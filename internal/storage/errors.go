package storage

import "errors"

var (
	// ErrNotFound reports a missing account, event or progress record.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey reports a Create of an existing account or a second
	// append of an event id. Event logs are append-only.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput reports a nil or malformed record.
	ErrInvalidInput = errors.New("invalid input")
)
