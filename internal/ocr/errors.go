package ocr

import (
	"context"
	"errors"
	"fmt"
)

// Common OCR processing errors
var (
	// ErrUnavailable is returned when the engine cannot run at all: the
	// command is not installed or cloud credentials are missing.
	ErrUnavailable = errors.New("OCR engine unavailable")

	// ErrTimeout is returned when processing exceeds its deadline.
	ErrTimeout = errors.New("OCR processing timed out")

	// ErrPDFTooLarge is returned when the PDF exceeds the engine's size limit.
	ErrPDFTooLarge = errors.New("PDF file size exceeds the maximum limit (20MB)")

	// ErrInvalidPDF is returned when the provided data is not a valid PDF document.
	ErrInvalidPDF = errors.New("invalid or corrupted PDF document")

	// ErrOCRFailed is returned when the engine fails to process the document.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrEmptyDocument is returned when the PDF contains no readable text.
	ErrEmptyDocument = errors.New("document contains no readable text")
)

// OCRError wraps errors with additional context about the OCR processing failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "Process", "NewVisionService").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewOCRError creates a new OCRError with the specified operation and underlying error.
func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
// Deadline overruns become ErrTimeout.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err // Already wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return NewOCRError(op, err, details)
}

// Retryable reports whether a later attempt may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}
