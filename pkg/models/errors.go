package models

import "errors"

// Sentinel errors returned by the service packages. Handlers map them to
// HTTP statuses; callers test with errors.Is.
var (
	// ErrUnauthorized means the caller has no valid identity for the
	// operation. Reads degrade to empty results instead of returning it.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound means a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation means the input was rejected before any write.
	ErrValidation = errors.New("validation failed")
)
