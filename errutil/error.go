package errutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error for callers deciding whether to surface, retry or alert.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindState             Kind = "state"
	KindConflict          Kind = "conflict"
	KindNotFound          Kind = "not_found"
	KindTransientExternal Kind = "transient_external"
	KindPermanentExternal Kind = "permanent_external"
	KindInvariant         Kind = "invariant"
	KindInternal          Kind = "internal"
)

// Reasons attached to engine rejections.
const (
	ReasonNotEnrolled         = "not_enrolled"
	ReasonChallengeNotStarted = "challenge_not_started"
	ReasonChallengeEnded      = "challenge_ended"
	ReasonMissingContent      = "missing_content"
	ReasonInvalidContent      = "invalid_content"
	ReasonUnknownCadence      = "unknown_cadence"
	ReasonInvalidChallenge    = "invalid_challenge"
	ReasonConcurrentUpdate    = "concurrent_update"
	ReasonSplitMismatch       = "split_mismatch"
)

// Error is the typed error returned across service boundaries.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error of the given kind.
func New(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, reason, message string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message, Err: err}
}

func Validation(reason, message string) *Error { return New(KindValidation, reason, message) }

func State(reason, message string) *Error { return New(KindState, reason, message) }

func NotFound(reason, message string) *Error { return New(KindNotFound, reason, message) }

func Conflict(message string, err error) *Error {
	return Wrap(KindConflict, ReasonConcurrentUpdate, message, err)
}

func Invariant(reason, message string) *Error { return New(KindInvariant, reason, message) }

func Internal(message string, err error) *Error {
	return Wrap(KindInternal, "internal", message, err)
}

// NotEnrolled reports a submission for an enrollment that does not exist.
func NotEnrolled() *Error {
	return State(ReasonNotEnrolled, "not enrolled in this challenge")
}

// UnknownCadence reports a cadence outside the closed enum.
func UnknownCadence(cadence string) *Error {
	return Validation(ReasonUnknownCadence, fmt.Sprintf("unknown cadence %q", cadence))
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, KindInternal for untyped errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// HasReason reports whether err carries the given reason.
func HasReason(err error, reason string) bool {
	e, ok := As(err)
	return ok && e.Reason == reason
}

// HTTPStatus maps err onto an HTTP status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindState, KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindTransientExternal:
		return http.StatusBadGateway
	case KindPermanentExternal:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Code maps err onto the numeric business code used in JSON responses.
func Code(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return 40020
	case KindState:
		return 40920
	case KindConflict:
		return 40921
	case KindNotFound:
		return 40420
	case KindTransientExternal:
		return 50220
	case KindPermanentExternal:
		return 42220
	case KindInvariant:
		return 50021
	default:
		return 50020
	}
}
