// Package apperr defines the error taxonomy shared by the validation core.
//
// Callers branch on the kind with errors.Is against the exported sentinels:
//
//	if errors.Is(err, apperr.ErrRateLimit) { ... }
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the caller should react to it.
type Kind string

const (
	// KindValidation is a local input problem; nothing reached the network.
	KindValidation Kind = "validation"
	// KindConflict is an expected business outcome such as "already taken".
	KindConflict Kind = "conflict"
	// KindTransport is a network, timeout or upstream 5xx failure.
	KindTransport Kind = "transport"
	// KindRateLimit is a local throttle refusal.
	KindRateLimit Kind = "rate_limit"
)

var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrTransport  = &Error{Kind: KindTransport}
	ErrRateLimit  = &Error{Kind: KindRateLimit}
)

// Error carries a kind, the failing operation and a user-presentable message.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.describe(), e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.describe())
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.describe(), e.Err)
	default:
		return e.describe()
	}
}

func (e *Error) describe() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind) + " error"
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels work with
// errors.Is regardless of Op, Message or the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Validation(op, message string) error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

func Conflict(op, message string) error {
	return &Error{Kind: KindConflict, Op: op, Message: message}
}

func Transport(op string, err error) error {
	return &Error{Kind: KindTransport, Op: op, Message: "service unavailable, please try again", Err: err}
}

func RateLimit(op, message string) error {
	return &Error{Kind: KindRateLimit, Op: op, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the user-presentable message of err, falling back to
// fallback when err carries none.
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
