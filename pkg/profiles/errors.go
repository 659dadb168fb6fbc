package profiles

import "errors"

var (
	// ErrProfileNotFound is returned when no profile row exists for the id
	ErrProfileNotFound = errors.New("profile not found")

	// ErrProfileConflict is returned when a write collides with an existing row
	ErrProfileConflict = errors.New("profile already exists")

	// ErrProfileNotAcceptable is returned when the store's row-level policy
	// rejected the write shape, or zero rows matched ambiguously
	ErrProfileNotAcceptable = errors.New("profile write not acceptable")
)
