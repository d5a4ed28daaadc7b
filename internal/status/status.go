// Package status defines the error taxonomy every workflow translates
// store and transport failures into before they cross the command bus.
package status

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindOK is the non-error informational status ("flow incomplete").
	KindOK Kind = iota
	// KindBadRequest marks malformed caller input.
	KindBadRequest
	// KindAuthError marks a failed credential check (invalid/expired OTP).
	KindAuthError
	// KindNotFound marks a missing record or wiring defect.
	KindNotFound
	// KindInternal wraps store/notifier failures. Its message is safe to
	// log but must not be shown verbatim to end users.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindBadRequest:
		return "bad_request"
	case KindAuthError:
		return "auth_error"
	case KindNotFound:
		return "not_found"
	case KindInternal:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Status is an error value carrying a kind and a caller-facing message.
type Status struct {
	Kind    Kind
	Message string
	cause   error
}

func (s *Status) Error() string {
	if s.cause != nil {
		return fmt.Sprintf("%s: %s: %v", s.Kind, s.Message, s.cause)
	}
	return fmt.Sprintf("%s: %s", s.Kind, s.Message)
}

func (s *Status) Unwrap() error {
	return s.cause
}

func OK(message string) *Status {
	return &Status{Kind: KindOK, Message: message}
}

func BadRequest(message string) *Status {
	return &Status{Kind: KindBadRequest, Message: message}
}

func AuthError(message string) *Status {
	return &Status{Kind: KindAuthError, Message: message}
}

func NotFound(message string) *Status {
	return &Status{Kind: KindNotFound, Message: message}
}

func Internal(message string) *Status {
	return &Status{Kind: KindInternal, Message: message}
}

// InternalWrap keeps the underlying cause reachable via errors.Unwrap
// so it can be logged with full detail at the boundary.
func InternalWrap(message string, cause error) *Status {
	return &Status{Kind: KindInternal, Message: message, cause: cause}
}

// KindOf extracts the status kind from an error chain. Errors that were
// never translated count as internal.
func KindOf(err error) Kind {
	var s *Status
	if errors.As(err, &s) {
		return s.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message for an error chain.
// Untranslated errors get a generic message so raw internals never
// reach the caller.
func MessageOf(err error) string {
	var s *Status
	if errors.As(err, &s) {
		if s.Kind == KindInternal {
			return "internal error"
		}
		return s.Message
	}
	return "internal error"
}
