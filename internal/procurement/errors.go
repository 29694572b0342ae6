package procurement

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindIdentityMismatch
	KindValidation
	KindInvalidTransition
)

// String method for Kind enum
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindIdentityMismatch:
		return "IDENTITY_MISMATCH"
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindInvalidTransition:
		return "INVALID_TRANSITION"
	default:
		return "INTERNAL_ERROR"
	}
}

// Sentinels for errors.Is checks against an *Error's kind
var (
	ErrNotFound          = errors.New("not found")
	ErrIdentityMismatch  = errors.New("line item identity mismatch")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid transition")
)

// Error is a mutation or validation failure with enough context for an
// operator to find the record by hand.
type Error struct {
	Kind     Kind
	Message  string
	OrderID  string
	Position int
	Code     string
	Fields   map[string]string
	Err      error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.OrderID != "" {
		msg = fmt.Sprintf("%s (order %s, position %d", msg, e.OrderID, e.Position)
		if e.Code != "" {
			msg += ", code " + e.Code
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrIdentityMismatch:
		return e.Kind == KindIdentityMismatch
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrInvalidTransition:
		return e.Kind == KindInvalidTransition
	}
	return false
}

// Errorf builds an *Error of the given kind
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// LineError builds an *Error scoped to a line item
func LineError(kind Kind, ref LineRef, code, format string, args ...interface{}) *Error {
	return &Error{
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		OrderID:  ref.OrderID,
		Position: ref.Position,
		Code:     code,
	}
}

// KindOf returns the kind of err, or KindInternal if it is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
