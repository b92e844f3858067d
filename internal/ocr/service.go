// Package ocr turns a merged packet PDF into per-page text and a PDF that
// can be archived.
//
// Four engines implement Service:
//   - ExecService runs ocrmypdf (or a compatible command) and reads its
//     page-separated sidecar text. This is the default.
//   - VisionService sends the PDF to Google Cloud Vision document text
//     detection.
//   - DocumentAIService sends the PDF to a Google Document AI OCR processor.
//   - TextLayerService reads the text layer of PDFs that are already
//     searchable.
//
// Google engines authenticate with GOOGLE_CREDENTIALS (inline JSON),
// GOOGLE_APPLICATION_CREDENTIALS (file path) or application default
// credentials, in that order.
//
// Every failure is an *OCRError. Missing tooling or credentials match
// ErrUnavailable and deadline overruns match ErrTimeout; both are worth a
// retry on the next run.
package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// DefaultLanguages is the tesseract language set for loan packets.
const DefaultLanguages = "spa+eng"

// PageSeparator divides pages in sidecar text files.
const PageSeparator = "\f"

// Service recognizes the text of a PDF.
type Service interface {
	// Process reads req.InputPath, leaves a PDF at req.OutputPath and
	// returns the text of every page in order.
	Process(ctx context.Context, req Request) (*Result, error)
}

// Request describes one OCR job.
type Request struct {
	InputPath  string
	OutputPath string
	// Languages in tesseract notation ("spa+eng"); empty means DefaultLanguages.
	Languages string
}

func (r Request) languages() string {
	if r.Languages == "" {
		return DefaultLanguages
	}
	return r.Languages
}

// Result contains the recognized text with metadata.
type Result struct {
	// Pages holds the text of each page, in page order.
	Pages []string `json:"pages"`

	// PageCount is the number of pages that were processed.
	PageCount int `json:"page_count"`

	// Confidence is the average confidence reported by the engine (0.0 to 1.0),
	// zero when the engine reports none.
	Confidence float32 `json:"confidence"`

	// LanguageCodes contains the detected languages in the document.
	LanguageCodes []string `json:"language_codes,omitempty"`

	// ProcessedAt is the timestamp when the OCR processing completed.
	ProcessedAt time.Time `json:"processed_at"`

	// ProcessingDuration is how long the OCR processing took.
	ProcessingDuration time.Duration `json:"processing_duration"`

	// Engine names the backend that produced the result.
	Engine string `json:"engine"`
}

// SplitPages splits sidecar text into pages. A trailing separator does not
// add an empty page.
func SplitPages(text string) []string {
	pages := strings.Split(text, PageSeparator)
	if n := len(pages); n > 1 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	return pages
}

// WriteSidecar stores page texts separated by PageSeparator.
func WriteSidecar(path string, pages []string) error {
	if err := os.WriteFile(path, []byte(strings.Join(pages, PageSeparator)), 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}

// ReadSidecar loads page texts written by WriteSidecar or ocrmypdf --sidecar.
func ReadSidecar(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return SplitPages(string(data)), nil
}

// languageHints converts tesseract codes to the BCP-47 hints Google expects.
func languageHints(langs string) []string {
	var hints []string
	for _, l := range strings.Split(langs, "+") {
		switch strings.TrimSpace(l) {
		case "spa":
			hints = append(hints, "es")
		case "eng":
			hints = append(hints, "en")
		case "":
		default:
			hints = append(hints, l)
		}
	}
	return hints
}
