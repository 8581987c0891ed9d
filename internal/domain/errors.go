// internal/domain/errors.go
package domain

import "errors"

// ErrUnauthorized is returned by the watch-history client when the API responds with HTTP 401.
// Callers can check for it using errors.Is to trigger token refresh or re-auth.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotFound is returned by library lookups when no series or episode matches.
// The sweep treats it as a skip, not a failure.
var ErrNotFound = errors.New("not found")
