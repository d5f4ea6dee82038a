// Package coreerr is the core's typed error taxonomy (spec §7), adapted
// from the teacher's HTTP error-type table (types/errors/http.go) into a
// taxonomy of local-failure kinds rather than HTTP status codes.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind classifies a core error per §7's taxonomy.
type Kind string

const (
	KindProviderFailure Kind = "PROVIDER_FAILURE"
	KindStoreFailure    Kind = "STORE_FAILURE"
	KindMissingData     Kind = "MISSING_DATA"
	KindTrainingFailure Kind = "TRAINING_FAILURE"
	KindInvalidInput    Kind = "INVALID_INPUT"
)

// DefaultMessages gives a human-readable default per Kind, mirroring the
// teacher's DefaultErrorMessages table.
var DefaultMessages = map[Kind]string{
	KindProviderFailure: "a feature provider timed out or failed",
	KindStoreFailure:    "the underlying key/value store failed",
	KindMissingData:     "the requested data is not available",
	KindTrainingFailure: "training could not complete",
	KindInvalidInput:    "the request was invalid",
}

// Sentinel errors for errors.Is comparisons. Wrap with fmt.Errorf("...: %w", ErrMissingData).
var (
	ErrProviderFailure = errors.New(string(KindProviderFailure))
	ErrStoreFailure    = errors.New(string(KindStoreFailure))
	ErrMissingData     = errors.New(string(KindMissingData))
	ErrTrainingFailure = errors.New(string(KindTrainingFailure))
	ErrInvalidInput    = errors.New(string(KindInvalidInput))
)

func sentinelFor(k Kind) error {
	switch k {
	case KindProviderFailure:
		return ErrProviderFailure
	case KindStoreFailure:
		return ErrStoreFailure
	case KindMissingData:
		return ErrMissingData
	case KindTrainingFailure:
		return ErrTrainingFailure
	case KindInvalidInput:
		return ErrInvalidInput
	default:
		return errors.New(string(k))
	}
}

// CoreError is a typed, wrappable error carrying a Kind plus context.
type CoreError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return sentinelFor(e.Kind)
}

// New builds a CoreError with the default message for Kind unless msg is
// supplied.
func New(kind Kind, msg string, cause error) *CoreError {
	if msg == "" {
		msg = DefaultMessages[kind]
	}
	return &CoreError{Kind: kind, Message: msg, Cause: cause}
}

// MissingData is a convenience constructor for the common "no such
// record" path (§7: "Surfaced to caller as a typed error").
func MissingData(what string) *CoreError {
	return New(KindMissingData, what, nil)
}

// IsKind reports whether err (or anything it wraps) is a CoreError of the
// given Kind.
func IsKind(err error, kind Kind) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return errors.Is(err, sentinelFor(kind))
}
