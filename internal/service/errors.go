// Package service provides business logic implementations.
package service

import "errors"

// Error kinds surfaced to callers. Validation errors are final and
// must not be retried; ErrTransient marks lock or store contention
// that a caller may retry with backoff.
var (
	ErrDuplicateName = errors.New("name already in use")
	ErrNotFound      = errors.New("not found")
	ErrNotOwned      = errors.New("character not owned by user")
	ErrNotPermitted  = errors.New("operation not permitted")
	ErrInvalidState  = errors.New("invalid state for operation")
	ErrTransient     = errors.New("transient store error")
)
