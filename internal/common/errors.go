// Package common defines shared constants and sentinel errors used across
// rollkeeper components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Input errors.
	ErrValidation = errors.New("validation error")
	ErrBadRequest = errors.New("bad request")

	// Lookup errors.
	ErrNotFound = errors.New("not found")

	// Ledger uniqueness violation: the student is already marked.
	ErrConflict = errors.New("already marked")

	// Inactive or expired session, or an actor that may not perform the action.
	ErrForbidden = errors.New("forbidden")

	// Storage or other unexpected failures.
	ErrInternal = errors.New("internal error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
