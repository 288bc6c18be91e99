package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a run failure.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindSourceUnavailable  Kind = "source_unavailable"
	KindNoMatchFound       Kind = "no_match_found"
	KindExtractionFailed   Kind = "extraction_failed"
	KindEmptyExtraction    Kind = "empty_extraction"
	KindRenderFailed       Kind = "render_failed"
	KindPersistenceFailure Kind = "persistence_failure"
)

// ErrPersistence wraps filesystem failures while storing artifacts.
var ErrPersistence = errors.New("persistence failed")

// Error is a run failure for one date.
type Error struct {
	Kind Kind
	Date string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Kind, e.Date, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, date string, err error) *Error {
	return &Error{Kind: kind, Date: date, Err: err}
}

// KindOf returns the Kind of err, or "" if err is not a run failure.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// ExitCode maps a run's error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
