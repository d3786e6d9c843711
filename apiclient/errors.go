package apiclient

import (
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/civic-console/internal/errors"
)

// Kind classifies a failed call.
type Kind int

const (
	KindTransport       Kind = iota + 1 // no response received
	KindUnauthenticated                 // 401 that survived the refresh protocol
	KindForbidden                       // 403
	KindClient                          // other 4xx
	KindServer                          // 5xx
	KindInvalidResponse                 // body did not have the expected shape
	KindSessionExpired                  // refresh failed and the session was cleared
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	case KindInvalidResponse:
		return "invalid_response"
	case KindSessionExpired:
		return "session_expired"
	default:
		return "unknown"
	}
}

// Error is returned by every failed Client call.
type Error struct {
	Op         string
	StatusCode int
	Kind       Kind
	Message    string // server supplied message, if any
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Err != nil && e.StatusCode > 0:
		return fmt.Sprintf("%s: status=%d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s: status=%d", e.Op, e.StatusCode)
	default:
		return e.Op
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is maps the kind onto the shared sentinels so callers can use errors.Is
// without importing this package.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case apperrors.ErrTransport:
		return e.Kind == KindTransport
	case apperrors.ErrUnauthenticated:
		return e.Kind == KindUnauthenticated
	case apperrors.ErrForbidden:
		return e.Kind == KindForbidden
	case apperrors.ErrClient:
		return e.Kind == KindClient
	case apperrors.ErrServer:
		return e.Kind == KindServer
	case apperrors.ErrInvalidResponse:
		return e.Kind == KindInvalidResponse
	case apperrors.ErrSessionExpired:
		return e.Kind == KindSessionExpired
	case apperrors.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// UserMessage is the text shown in the console for this failure.
func (e *Error) UserMessage() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case KindTransport:
		return "Unable to reach the server. Check your connection and try again."
	case KindServer:
		return "Server error, please try again later."
	case KindForbidden:
		return "You do not have permission to perform this action."
	case KindUnauthenticated, KindSessionExpired:
		return "Your session has expired. Please sign in again."
	case KindInvalidResponse:
		return "The server sent an unexpected response."
	}
	if e.Message != "" {
		return e.Message
	}
	if e.StatusCode > 0 {
		return http.StatusText(e.StatusCode)
	}
	return "Request failed."
}

// IsAuthError reports failures that mean the credentials are no good: a 401
// after the refresh protocol, a 403, or a cleared session.
func IsAuthError(err error) bool {
	var apiErr *Error
	if !apperrors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Kind {
	case KindUnauthenticated, KindForbidden, KindSessionExpired:
		return true
	}
	return false
}

// IsRetryable reports failures worth retrying for a read: transport errors and 5xx.
func IsRetryable(err error) bool {
	var apiErr *Error
	if !apperrors.As(err, &apiErr) {
		return false
	}
	return apiErr.Kind == KindTransport || apiErr.Kind == KindServer
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthenticated
	case status == http.StatusForbidden:
		return KindForbidden
	case status >= 500:
		return KindServer
	default:
		return KindClient
	}
}
