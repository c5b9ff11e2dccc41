package services

import (
	"errors"
	"fmt"
)

// Kind classifies a failure of an inbox operation
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindConflict        Kind = "conflict"
	KindPolicyViolation Kind = "policy_violation"
	KindProvider        Kind = "provider_error"
	KindStore           Kind = "store_error"
)

// Error is a request-scoped failure carrying its kind and context
type Error struct {
	Kind    Kind
	Message string
	// LockedBy is the holder of the conversation lock for KindConflict
	LockedBy uint
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or "" when err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func Unauthenticated(msg string, err error) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg, Err: err}
}

func ValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// Conflict reports that principal lockedBy holds the conversation lock
func Conflict(lockedBy uint) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf("conversation locked by %d", lockedBy), LockedBy: lockedBy}
}

func PolicyViolation(msg string) *Error {
	return &Error{Kind: KindPolicyViolation, Message: msg}
}

func ProviderError(err error) *Error {
	return &Error{Kind: KindProvider, Message: "provider send failed", Err: err}
}

func StoreError(msg string, err error) *Error {
	return &Error{Kind: KindStore, Message: msg, Err: err}
}
