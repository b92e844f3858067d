package extract

import (
	"errors"
	"fmt"
	"strings"

	"pita/internal/document"
)

var (
	// ErrExtractionPartial is returned next to a usable field map when
	// required fields could not be found.
	ErrExtractionPartial = errors.New("required fields missing")

	// ErrUnknownType is returned for types that carry no extraction rules.
	ErrUnknownType = errors.New("no extraction rules for document type")

	// ErrCompletionFailed is returned when the completion backend gives no usable answer.
	ErrCompletionFailed = errors.New("field completion failed")
)

// PartialError lists the required fields a document is missing.
type PartialError struct {
	DocType document.Type
	Missing []string
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("extract: %s: %v: %s", e.DocType, ErrExtractionPartial, strings.Join(e.Missing, ", "))
}

func (e *PartialError) Unwrap() error {
	return ErrExtractionPartial
}
