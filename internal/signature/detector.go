package signature

import (
	"context"
	"errors"
	"fmt"
	"image"
	"regexp"

	"github.com/rs/zerolog"

	"pita/internal/document"
	"pita/internal/logger"
)

// ImageSource renders or extracts the image of a 1-based page. Pages without
// an extractable image return ErrNoImage.
type ImageSource interface {
	PageImage(ctx context.Context, page int) (image.Image, error)
}

// Detector decides signature presence for one document.
type Detector struct {
	images     ImageSource
	thresholds Thresholds
	log        zerolog.Logger
}

// NewDetector creates a detector. A nil ImageSource disables handwritten
// analysis, so documents without a text signature come out indeterminate.
func NewDetector(images ImageSource, thresholds Thresholds) *Detector {
	return &Detector{
		images:     images,
		thresholds: thresholds,
		log:        logger.WithComponent("signature"),
	}
}

// ImageAnalysis reports whether handwritten analysis is possible at all.
func (d *Detector) ImageAnalysis() bool {
	return d.images != nil
}

var spaces = regexp.MustCompile(`\s+`)

// Detect inspects the combined text of a document and, when needed, the
// images of its pages. An indeterminate result comes with ErrIndeterminate.
func (d *Detector) Detect(ctx context.Context, text string, pages []int) (Record, error) {
	normalized := spaces.ReplaceAllString(text, " ")

	for _, v := range TextVariants {
		if detail, ok := v.Find(normalized); ok {
			return Record{Presence: document.TriTrue, Variant: v.Variant(), Detail: detail}, nil
		}
	}

	if d.images == nil {
		return indeterminate("análisis de imagen deshabilitado"), ErrIndeterminate
	}

	var (
		best     InkAnalysis
		bestPage int
		analyzed int
	)
	for _, page := range pages {
		img, err := d.images.PageImage(ctx, page)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Record{}, err
			}
			d.log.Debug().Err(err).Int("page", page).Msg("No image for page")
			continue
		}
		analyzed++

		a := AnalyzeInk(img, d.thresholds)
		d.log.Debug().
			Int("page", page).
			Float64("ink_percent", a.InkPercent).
			Int("strokes", a.Strokes).
			Msg("Ink analysis")

		if a.Strength == StrengthStrong {
			return handwritten(a, page), nil
		}
		if a.Strength > best.Strength || (a.Strength == best.Strength && a.Confidence > best.Confidence) {
			best, bestPage = a, page
		}
	}

	if analyzed == 0 {
		return indeterminate("sin imagen de página extraíble"), ErrIndeterminate
	}
	if best.Strength == StrengthWeak {
		return handwritten(best, bestPage), nil
	}
	return Record{
		Presence: document.TriFalse,
		Variant:  VariantNone,
		Detail:   "No se detectaron trazos de firma",
	}, nil
}

func handwritten(a InkAnalysis, page int) Record {
	return Record{
		Presence: document.TriTrue,
		Variant:  VariantHandwritten,
		Detail:   fmt.Sprintf("%s en página %d", a.detail(), page),
	}
}

func indeterminate(reason string) Record {
	return Record{Presence: document.TriUnknown, Variant: VariantNone, Detail: "Firma no verificable: " + reason}
}
