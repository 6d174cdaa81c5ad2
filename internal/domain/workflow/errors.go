package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies a workflow failure so transports can map it to a response
type Kind string

const (
	KindNotFound               Kind = "NOT_FOUND"
	KindPermissionDenied       Kind = "PERMISSION_DENIED"
	KindInvalidTransition      Kind = "INVALID_TRANSITION"
	KindRejectionLimitExceeded Kind = "REJECTION_LIMIT_EXCEEDED"
	KindValidationFailed       Kind = "VALIDATION_FAILED"
	KindOverDelivery           Kind = "OVER_DELIVERY"
)

// Error is a typed workflow failure carrying a kind and a human readable detail
type Error struct {
	Kind   Kind
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// regardless of the detail message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds an *Error with a formatted detail
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

var (
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrPermissionDenied       = &Error{Kind: KindPermissionDenied}
	ErrInvalidTransition      = &Error{Kind: KindInvalidTransition}
	ErrRejectionLimitExceeded = &Error{Kind: KindRejectionLimitExceeded}
	ErrValidationFailed       = &Error{Kind: KindValidationFailed}
	ErrOverDelivery           = &Error{Kind: KindOverDelivery}

	// ErrGuardFailed is returned alongside ErrInvalidTransition when a guard condition fails
	ErrGuardFailed = errors.New("guard condition failed")
)

// KindOf returns the kind of the first *Error in err's chain, or "" when none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
