package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork wraps transport failures talking to the provider.
	ErrNetwork = errors.New("network error")
	// ErrAuthInProgress is returned when another authentication attempt holds the guard.
	ErrAuthInProgress = errors.New("authentication already started")
	// ErrAuthExpired is returned when the device code expired before the user confirmed it.
	ErrAuthExpired = errors.New("device code expired")
	// ErrAuthAborted is returned when the attempt was denied, cancelled or gave up.
	ErrAuthAborted = errors.New("authentication aborted")
	// ErrPollDeclined is the abort reason when the OnPoll hook stops polling.
	ErrPollDeclined = errors.New("polling declined")
	// ErrTooManyFailures is the abort reason when transient poll errors exceed the budget.
	ErrTooManyFailures = errors.New("too many consecutive poll failures")
	// ErrAccessDenied is the abort reason when the user rejects the request.
	ErrAccessDenied = errors.New("access denied by user")
	// ErrInvalidDeviceCode is the abort reason when the provider no longer recognises the device code.
	ErrInvalidDeviceCode = errors.New("device code not recognised")
	// ErrCodeAlreadyUsed is the abort reason when the device code was already exchanged.
	ErrCodeAlreadyUsed = errors.New("device code already used")
	// ErrNoRefreshToken is returned when a refresh is needed but no refresh token is stored.
	ErrNoRefreshToken = errors.New("no refresh token available")
)

// ProviderError is returned when the provider answers with an unexpected status code.
type ProviderError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: provider returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: provider returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// Transient reports whether the failure is worth another poll (server-side errors).
func (e *ProviderError) Transient() bool {
	return e.StatusCode >= 500
}
