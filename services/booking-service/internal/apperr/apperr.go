// Package apperr carries the failure taxonomy shared by the booking service.
// Every user-visible failure has a Kind so callers can tell "show the error"
// apart from "refresh availability and let the user pick again".
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInterval Kind = "invalid_interval"
	KindSlotConflict    Kind = "slot_conflict"
	KindValidation      Kind = "validation"
	KindTransport       Kind = "transport"
	KindNotFound        Kind = "not_found"
	KindInternal        Kind = "internal"
)

type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind) + ": " + e.Reason
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, so errors.Is(err, apperr.SlotConflict) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == "" && t.Err == nil && t.Kind == e.Kind
}

// NeedsRefresh reports whether the client should re-run the availability query
// instead of offering a retry.
func (e *Error) NeedsRefresh() bool { return e.Kind == KindSlotConflict }

// Sentinels for errors.Is checks.
var (
	InvalidInterval = &Error{Kind: KindInvalidInterval}
	SlotConflict    = &Error{Kind: KindSlotConflict}
	Validation      = &Error{Kind: KindValidation}
	Transport       = &Error{Kind: KindTransport}
	NotFound        = &Error{Kind: KindNotFound}
)

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func Conflict(reason string) *Error { return New(KindSlotConflict, reason) }

func Invalid(reason string) *Error { return New(KindValidation, reason) }

func TransportFailure(reason string, err error) *Error { return Wrap(KindTransport, reason, err) }

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns a human-readable reason safe to show to a user.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return "internal error"
}
