package jquants

import (
	"errors"
	"fmt"
)

// ErrRetriesExhausted is returned when a transient failure persists past the retry budget.
var ErrRetriesExhausted = errors.New("retries exhausted")

var errUnauthorized = errors.New("unauthorized")

// AuthError means credentials could not be refreshed or were rejected after
// a refresh. It is fatal for the run: once raised, every later call on the
// same Client returns it.
type AuthError struct {
	Endpoint string
	Reason   string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("jquants auth failed on %s: %s: %v", e.Endpoint, e.Reason, e.Err)
	}
	return fmt.Sprintf("jquants auth failed on %s: %s", e.Endpoint, e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// APIError is a non-retryable client error response.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jquants %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// TransientError is a failure worth retrying: network errors, 5xx and 429.
type TransientError struct {
	StatusCode int
	Endpoint   string
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("jquants %s transient failure (status %d): %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("jquants %s transient failure: %v", e.Endpoint, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err should abort the whole run.
func IsFatal(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
