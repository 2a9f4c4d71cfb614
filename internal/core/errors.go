package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the cost manager.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation_error"
	KindStorageUnavailable ErrorKind = "storage_unavailable"
	KindRatesFetch         ErrorKind = "rates_fetch_error"
	KindMissingRate        ErrorKind = "missing_rate_error"
)

// Error carries a kind, a human-readable message and an optional cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrValidation)
// holds for every validation failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable, Message: "storage unavailable"}
	ErrRatesFetch         = &Error{Kind: KindRatesFetch, Message: "failed to fetch exchange rates"}
	ErrMissingRate        = &Error{Kind: KindMissingRate, Message: "missing currency rate"}
)

// Field-level causes wrapped by validation errors.
var (
	ErrInvalidSum       = errors.New("invalid sum")
	ErrEmptyCurrency    = errors.New("empty currency")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyDescription = errors.New("empty description")
)

func NewValidationError(msg string, cause error) error {
	return &Error{Kind: KindValidation, Message: msg, Err: cause}
}

func NewStorageError(msg string, cause error) error {
	return &Error{Kind: KindStorageUnavailable, Message: msg, Err: cause}
}

func NewRatesFetchError(msg string, cause error) error {
	return &Error{Kind: KindRatesFetch, Message: msg, Err: cause}
}

func NewMissingRateError(msg string) error {
	return &Error{Kind: KindMissingRate, Message: msg}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
