package errors

import (
	"errors"
	"fmt"
)

// Common error types for the console session core
var (
	// Authentication errors
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// Token errors
	ErrNoAccessToken  = errors.New("no access token")
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrTokenExpired   = errors.New("token expired")
	ErrRefreshFailed  = errors.New("token refresh failed")

	// Transport and server errors
	ErrTransport = errors.New("transport error")
	ErrServer    = errors.New("server error")
	ErrClient    = errors.New("client error")

	// Shape errors
	ErrInvalidResponse = errors.New("invalid response")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

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
