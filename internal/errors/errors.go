// Package errors defines the sentinel errors shared across packages.
// Callers wrap them with %w and match with errors.Is.
package errors

import "errors"

// Session and login errors.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTokenNotFound      = errors.New("token not found in session")
	ErrTokenUnavailable   = errors.New("failed to obtain authentication token")
)

// Upstream errors. ErrAPIRequest means no response was received;
// ErrAPIResponse means the upstream answered with an error status.
var (
	ErrAPIRequest  = errors.New("upstream request failed")
	ErrAPIResponse = errors.New("upstream returned an error status")
)
