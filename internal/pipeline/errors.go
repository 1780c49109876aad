package pipeline

import (
	"errors"
	"fmt"
)

// ErrDuplicateFile is returned by Store implementations when an insert hits
// the (userID, dataHash) uniqueness constraint.
var ErrDuplicateFile = errors.New("duplicate file")

// ErrorKind discriminates pipeline failure modes so callers can branch
// without matching on error strings.
type ErrorKind string

const (
	KindNoTextExtracted   ErrorKind = "no_text_extracted"
	KindExtractionService ErrorKind = "extraction_service_error"
	KindMalformedResponse ErrorKind = "malformed_extraction_response"
	KindValidation        ErrorKind = "validation_error"
	KindDuplicateFile     ErrorKind = "duplicate_file"
	KindPersistence       ErrorKind = "persistence_error"
)

// Error is a tagged pipeline error. Raw carries the offending payload for
// parsing and validation failures so it can be logged for diagnostics.
type Error struct {
	Kind  ErrorKind
	Stage string
	Raw   string
	Err   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind of err, or "" when err is not a pipeline error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsDuplicate reports whether err represents a duplicate-upload outcome.
// Duplicates are a recognized result, not a processing failure.
func IsDuplicate(err error) bool {
	return KindOf(err) == KindDuplicateFile
}

// IsRetryable reports whether re-running the pipeline could plausibly
// succeed. Malformed input, validation failures and duplicates are terminal
// for a given upload; extraction-service and persistence failures are not.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindExtractionService, KindPersistence:
		return true
	default:
		return false
	}
}
