package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session library
var (
	// Storage errors
	ErrStorage       = errors.New("credential storage unavailable")
	ErrInvalidRecord = errors.New("invalid credential record")

	// Identity provider errors
	ErrAuthExchange = errors.New("auth exchange failed")
	ErrNetwork      = errors.New("network error")
	ErrUnauthorized = errors.New("unauthorized")

	// Session errors
	ErrNotLoggedIn   = errors.New("not logged in")
	ErrManagerClosed = errors.New("session manager closed")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
)

// ExchangeError carries the detail of a failed identity provider call. The
// detail is for logs only; users are only ever told to log in again.
type ExchangeError struct {
	Op         string // exchange_code, refresh, userinfo, revoke
	StatusCode int    // HTTP status, 0 when the request never completed
	Code       string // OAuth2 error code, e.g. invalid_grant
	Err        error
}

func (e *ExchangeError) Error() string {
	msg := e.Op
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Code)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// Is makes every ExchangeError match ErrAuthExchange, and 401 responses match
// ErrUnauthorized. Transport failures wrap ErrNetwork and so match it too.
func (e *ExchangeError) Is(target error) bool {
	switch target {
	case ErrAuthExchange:
		return true
	case ErrUnauthorized:
		return e.StatusCode == 401
	}
	return false
}

// Transient reports whether the request never reached a provider decision.
func (e *ExchangeError) Transient() bool {
	return errors.Is(e.Err, ErrNetwork)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single errors import.
func New(text string) error {
	return errors.New(text)
}
