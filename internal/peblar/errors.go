package peblar

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoggedIn is returned when a call requires a session and Login
	// has not succeeded yet.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrInvalidSmartChargingMode is returned for a mode outside the set
	// the charger accepts.
	ErrInvalidSmartChargingMode = errors.New("invalid smart charging mode")
)

// ConnError indicates the charger could not be reached at all (transport
// failure, timeout). Callers should treat the device as temporarily
// unavailable.
type ConnError struct {
	err error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("connection to charger failed: %v", e.err)
}

func (e *ConnError) Unwrap() error { return e.err }

// AuthError indicates the charger rejected the credentials or the session
// expired. Callers should prompt for reauthentication.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("charger rejected credentials (status %d)", e.StatusCode)
}

// APIError is any other non-success response from the charger.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("charger returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("charger returned status %d", e.StatusCode)
}
