package ingest

import (
	"errors"
	"fmt"
)

// Kind classifies why an import failed.
type Kind string

const (
	KindUnsupportedInstitution Kind = "UNSUPPORTED_INSTITUTION"
	KindNoParser               Kind = "NO_PARSER"
	KindDuplicateFile          Kind = "DUPLICATE_FILE"
	KindParseFailed            Kind = "PARSE_FAILED"
	KindPersistence            Kind = "PERSISTENCE_ERROR"
)

// Error is a failed import. Message is safe to show to the caller; Cause
// carries the internal detail and is only logged.
type Error struct {
	Kind    Kind
	Stage   Stage
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether running the same import again may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindPersistence
}

// KindOf returns the Kind of an ingest error anywhere in err's chain, or "".
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}
