package models

import "errors"

// Operation errors. NotFound and Unauthorized are terminal; Conflict means a
// bounded retry was exhausted and the caller may try again.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("not authorized")
	ErrConflict     = errors.New("conflict, retry")
	ErrValidation   = errors.New("validation failed")
)
