package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidEntry      = errors.New("invalid entry")
	ErrOutsideContentDir = errors.New("path outside content directory")
	ErrNotInitialized    = errors.New("not initialized")
)
