// Package errdefs defines the error taxonomy shared by all lowtide services.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and the HTTP layer
type Kind string

const (
	// KindValidation covers malformed or out-of-range input, rejected before any state change
	KindValidation Kind = "validation"
	// KindAuthorization covers callers that are neither the subscriber nor the operator
	KindAuthorization Kind = "authorization"
	// KindStateConflict covers rejections caused by current entity state (duplicate intent,
	// already-active subscription, payment not due, capacity exceeded)
	KindStateConflict Kind = "state_conflict"
	// KindNotFound covers lookups of unassigned identifiers
	KindNotFound Kind = "not_found"
	// KindExternal covers failures reported by the billing agent or ledger rail
	KindExternal Kind = "external"
)

// Error is a classified error. All service-level rejections are *Error values so
// handlers can map them to HTTP statuses without string matching.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's classification
func (e *Error) Kind() Kind { return e.kind }

// Validation creates a validation error
func Validation(format string, args ...interface{}) error {
	return &Error{kind: KindValidation, msg: fmt.Sprintf(format, args...)}
}

// Authorization creates an authorization error
func Authorization(format string, args ...interface{}) error {
	return &Error{kind: KindAuthorization, msg: fmt.Sprintf(format, args...)}
}

// Conflict creates a state conflict error
func Conflict(format string, args ...interface{}) error {
	return &Error{kind: KindStateConflict, msg: fmt.Sprintf(format, args...)}
}

// NotFound creates a not found error
func NotFound(format string, args ...interface{}) error {
	return &Error{kind: KindNotFound, msg: fmt.Sprintf(format, args...)}
}

// External wraps a failure reported by an external collaborator. The cause is
// preserved for errors.Is/errors.As matching.
func External(cause error, format string, args ...interface{}) error {
	return &Error{kind: KindExternal, msg: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf returns the classification of err, or the empty Kind for unclassified errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return ""
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsAuthorization reports whether err is an authorization error
func IsAuthorization(err error) bool { return KindOf(err) == KindAuthorization }

// IsConflict reports whether err is a state conflict error
func IsConflict(err error) bool { return KindOf(err) == KindStateConflict }

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsExternal reports whether err is an external failure
func IsExternal(err error) bool { return KindOf(err) == KindExternal }
