package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pita/internal/document"
	"pita/internal/extract"
	"pita/internal/logger"
	"pita/internal/report"
	"pita/internal/signature"
	"pita/internal/validation"
)

// ImageSourceFunc opens the page images of a searchable packet PDF. It
// returns nil when handwritten signature analysis is disabled.
type ImageSourceFunc func(pdfPath string) signature.ImageSource

// AnalyzerOptions wire the analysis stage.
type AnalyzerOptions struct {
	Extractor         extract.Service
	Validator         *validation.Validator
	Images            ImageSourceFunc
	Thresholds        signature.Thresholds
	ExtractionTimeout time.Duration
}

// Analyzer turns page texts into a validated report: classification,
// extraction, signature detection and validation.
type Analyzer struct {
	extractor extract.Service
	validator *validation.Validator
	images    ImageSourceFunc
	th        signature.Thresholds
	timeout   time.Duration
	log       zerolog.Logger
}

// NewAnalyzer creates an Analyzer. A nil Validator requires every type.
func NewAnalyzer(opts AnalyzerOptions) *Analyzer {
	if opts.Extractor == nil {
		opts.Extractor = extract.NewRuleExtractor()
	}
	if opts.Validator == nil {
		opts.Validator = validation.New(nil)
	}
	return &Analyzer{
		extractor: opts.Extractor,
		validator: opts.Validator,
		images:    opts.Images,
		th:        opts.Thresholds,
		timeout:   opts.ExtractionTimeout,
		log:       logger.WithComponent("analyzer"),
	}
}

// AnalyzeInput is one searchable packet.
type AnalyzeInput struct {
	Archivo string   // name of the archived PDF
	PDFPath string   // searchable PDF used for page images
	Pages   []string // page texts in order
	Now     time.Time
}

// Analyze classifies every page, extracts and checks each detected document
// and assembles the report. Non-fatal findings only show up as alerts;
// the returned error is set only for failures worth a retry.
func (a *Analyzer) Analyze(ctx context.Context, in AnalyzeInput) (*report.Report, error) {
	const op = "Analyze"

	log := a.log.With().Str("archivo", in.Archivo).Logger()

	classes, ambiguous := document.ClassifyPages(in.Pages)
	for _, err := range ambiguous {
		log.Debug().Err(err).Msg("Page not classified")
	}
	byType := document.PagesByType(classes)

	var images signature.ImageSource
	if a.images != nil && in.PDFPath != "" {
		images = a.images(in.PDFPath)
	}
	detector := signature.NewDetector(images, a.th)
	if !detector.ImageAnalysis() {
		log.Debug().Msg("Handwritten signature analysis disabled")
	}

	docs := make(map[document.Type]extract.Document, len(byType))
	sigs := make(map[document.Type]signature.Record)

	for _, t := range document.Types {
		pages, ok := byType[t]
		if !ok {
			continue
		}
		text := document.JoinPages(in.Pages, pages)

		fields, err := a.extract(ctx, t, text)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", op, t, err)
		}
		docs[t] = extract.Document{Type: t, Pages: pages, Fields: fields}

		if !t.RequiresSignature() {
			continue
		}
		rec, err := detector.Detect(ctx, text, pages)
		switch {
		case errors.Is(err, signature.ErrIndeterminate):
			log.Warn().Str("doc_type", string(t)).Str("detail", rec.Detail).Msg("Signature presence indeterminate")
		case err != nil:
			return nil, fmt.Errorf("%s: signature %s: %w", op, t, err)
		}
		sigs[t] = rec
	}

	unknown := document.UnknownPages(classes)
	res, err := a.validator.Validate(validation.Input{
		Documents:    docs,
		Signatures:   sigs,
		UnknownPages: unknown,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Packet data inconsistent")
	}

	log.Info().
		Int("pages", len(in.Pages)).
		Int("documents", len(docs)).
		Int("unknown_pages", len(unknown)).
		Str("status", string(res.Status)).
		Int("alerts", len(res.Alerts)).
		Msg("Packet analyzed")

	return report.Build(report.Input{
		Archivo:    in.Archivo,
		TotalPages: len(in.Pages),
		Documents:  docs,
		Signatures: sigs,
		Validation: res,
		Now:        in.Now,
	}), nil
}

func (a *Analyzer) extract(ctx context.Context, t document.Type, text string) (map[string]string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	fields, err := a.extractor.Extract(ctx, t, text)
	var partial *extract.PartialError
	if errors.As(err, &partial) {
		a.log.Debug().Str("doc_type", string(t)).Strs("missing", partial.Missing).Msg("Required fields not found")
		return fields, nil
	}
	if err != nil {
		return nil, err
	}
	return fields, nil
}
