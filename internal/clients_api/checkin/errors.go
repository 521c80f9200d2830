package checkin

import (
	"errors"
	"fmt"
)

// NetworkError is a failed exchange with the check-in service: a non-2xx
// status, or no usable response at all (StatusCode == 0).
type NetworkError struct {
	Op         string // "login" or "checkin"
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s request failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s request failed with status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s request failed: %v", e.Op, e.Err)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// transient reports whether the error says something about the service's
// health. Only these count against the circuit breaker.
func (e *NetworkError) transient() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429
}

// AuthError is a login the service rejected, or one that produced no session.
type AuthError struct {
	Account string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login rejected for %s: %s", e.Account, e.Message)
}

// ErrNoCookie is the message used when login succeeded but set no cookies.
const ErrNoCookie = "cookie retrieval failed"

func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
