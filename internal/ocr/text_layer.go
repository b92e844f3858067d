package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"pita/internal/logger"
)

// TextLayerService reads the embedded text of PDFs that are already
// searchable. No recognition happens; the input is copied to the output.
type TextLayerService struct {
	log zerolog.Logger
}

// NewTextLayerService creates a TextLayerService.
func NewTextLayerService() *TextLayerService {
	return &TextLayerService{log: logger.WithComponent("ocr-textlayer")}
}

// Process implements Service.
func (s *TextLayerService) Process(ctx context.Context, req Request) (*Result, error) {
	const op = "Process"
	start := time.Now()

	pages, err := readTextLayer(ctx, req.InputPath)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to read text layer")
	}
	if strings.TrimSpace(strings.Join(pages, "")) == "" {
		return nil, WrapOCRError(op, ErrEmptyDocument, "PDF has no text layer")
	}
	if err := copyPDF(req.InputPath, req.OutputPath); err != nil {
		return nil, WrapOCRError(op, err, "failed to write output PDF")
	}

	done := time.Now()
	s.log.Info().Int("pages", len(pages)).Msg("Text layer read")

	return &Result{
		Pages:              pages,
		PageCount:          len(pages),
		ProcessedAt:        done,
		ProcessingDuration: done.Sub(start),
		Engine:             "textlayer",
	}, nil
}

func readTextLayer(ctx context.Context, path string) (pages []string, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	defer f.Close()

	// The reader panics on some malformed content streams.
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("%w: %v", ErrInvalidPDF, rec)
		}
	}()

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
