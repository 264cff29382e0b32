// README: Typed error kinds shared by the lifecycle controllers, stores and the HTTP adapter.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindCapacityExceeded
	KindInvalidPin
	KindUnavailable
)

var kindNames = map[Kind]string{
	KindInternal:         "internal",
	KindInvalidArgument:  "invalid_argument",
	KindUnauthenticated:  "unauthenticated",
	KindForbidden:        "forbidden",
	KindNotFound:         "not_found",
	KindConflict:         "conflict",
	KindCapacityExceeded: "capacity_exceeded",
	KindInvalidPin:       "invalid_pin",
	KindUnavailable:      "unavailable",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is the only error type returned across package boundaries by the core.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	if e.Reason == "" {
		return e.Kind.String()
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind. CapacityExceeded also matches Conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindConflict && e.Kind == KindCapacityExceeded
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrCapacityExceeded = &Error{Kind: KindCapacityExceeded}
	ErrInvalidPin       = &Error{Kind: KindInvalidPin}
	ErrUnavailable      = &Error{Kind: KindUnavailable}
)

func InvalidArgument(reason string) error { return &Error{Kind: KindInvalidArgument, Reason: reason} }
func Unauthenticated(reason string) error { return &Error{Kind: KindUnauthenticated, Reason: reason} }
func Forbidden(reason string) error       { return &Error{Kind: KindForbidden, Reason: reason} }
func NotFound(reason string) error        { return &Error{Kind: KindNotFound, Reason: reason} }
func Conflict(reason string) error        { return &Error{Kind: KindConflict, Reason: reason} }
func CapacityExceeded(reason string) error {
	return &Error{Kind: KindCapacityExceeded, Reason: reason}
}
func InvalidPin(reason string) error { return &Error{Kind: KindInvalidPin, Reason: reason} }

// Unavailable wraps a Record Store I/O failure. The cause is kept for logs only.
func Unavailable(op string, err error) error {
	return &Error{Kind: KindUnavailable, Reason: "storage unavailable", Err: fmt.Errorf("%s: %w", op, err)}
}

// KindOf reports the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the caller-facing reason string.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Reason != "" {
			return e.Reason
		}
		return e.Kind.String()
	}
	return "internal error"
}
