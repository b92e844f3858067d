package signature_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"pita/internal/document"
	"pita/internal/signature"
)

type fakeImages map[int]image.Image

func (f fakeImages) PageImage(ctx context.Context, page int) (image.Image, error) {
	img, ok := f[page]
	if !ok {
		return nil, signature.ErrNoImage
	}
	return img, nil
}

// page returns a white 600x800 page with n horizontal strokes of the given
// size drawn in its lower band.
func page(n, length, thickness int) image.Image {
	img := image.NewGray(image.Rect(0, 0, 600, 800))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for s := 0; s < n; s++ {
		x0 := 40 + (s%4)*130
		y0 := 520 + (s/4)*60
		for y := y0; y < y0+thickness; y++ {
			for x := x0; x < x0+length; x++ {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return img
}

const handwrittenOnly = "AUTORIZACION PARA REFERIR LOS SEGUROS\nFirma del Solicitante ____________"

func TestDetectTextVariants(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		variant signature.Variant
		detail  string
	}{
		{
			name:    "timestamp",
			text:    "Divulgaciones\nfirmado electrónicamente\nJUAN PEREZ GARCIA 10/10/2025 7:29 AM PDT",
			variant: signature.VariantTimestamp,
			detail:  "10/10/2025 7:29 AM PDT",
		},
		{
			name:    "bare timestamp near signature words",
			text:    "Firma: 10/10/2025 7:29 AM",
			variant: signature.VariantTimestamp,
			detail:  "10/10/2025 7:29 AM",
		},
		{
			name:    "post certification",
			text:    "Certifico JUAN PEREZ RIVERA\nFirma",
			variant: signature.VariantPostCertification,
			detail:  "JUAN PEREZ RIVERA",
		},
		{
			name:    "x mark",
			text:    "Firma del Solicitante:\nX ____________",
			variant: signature.VariantXMark,
			detail:  "Marca X detectada",
		},
	}

	d := signature.NewDetector(nil, signature.DefaultThresholds())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := d.Detect(context.Background(), tt.text, []int{1})
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if rec.Presence != document.TriTrue || rec.Variant != tt.variant {
				t.Errorf("got %+v, want present %s", rec, tt.variant)
			}
			if !strings.Contains(rec.Detail, tt.detail) {
				t.Errorf("detail %q does not contain %q", rec.Detail, tt.detail)
			}
		})
	}
}

func TestDetectXInsideWordIsNotAMark(t *testing.T) {
	d := signature.NewDetector(fakeImages{1: page(0, 0, 0)}, signature.DefaultThresholds())
	rec, err := d.Detect(context.Background(), "Signature Xavier Torres ____", []int{1})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if rec.Variant == signature.VariantXMark {
		t.Errorf("name starting with X detected as a mark: %+v", rec)
	}
}

func TestDetectIndeterminateWithoutImageAnalysis(t *testing.T) {
	d := signature.NewDetector(nil, signature.DefaultThresholds())
	rec, err := d.Detect(context.Background(), handwrittenOnly, []int{1})
	if !errors.Is(err, signature.ErrIndeterminate) {
		t.Fatalf("err = %v, want ErrIndeterminate", err)
	}
	if rec.Presence != document.TriUnknown {
		t.Errorf("presence = %s, want unknown", rec.Presence)
	}
}

func TestDetectIndeterminateWithoutPageImages(t *testing.T) {
	d := signature.NewDetector(fakeImages{}, signature.DefaultThresholds())
	rec, err := d.Detect(context.Background(), handwrittenOnly, []int{1, 2})
	if !errors.Is(err, signature.ErrIndeterminate) || rec.Presence != document.TriUnknown {
		t.Fatalf("got %+v, %v", rec, err)
	}
}

func TestDetectHandwritten(t *testing.T) {
	tests := []struct {
		name     string
		img      image.Image
		presence document.Tri
		variant  signature.Variant
	}{
		{"strokes", page(8, 100, 4), document.TriTrue, signature.VariantHandwritten},
		{"faint", page(2, 40, 3), document.TriTrue, signature.VariantHandwritten},
		{"empty", page(0, 0, 0), document.TriFalse, signature.VariantNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := signature.NewDetector(fakeImages{1: tt.img}, signature.DefaultThresholds())
			rec, err := d.Detect(context.Background(), handwrittenOnly, []int{1})
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if rec.Presence != tt.presence || rec.Variant != tt.variant {
				t.Errorf("got %+v", rec)
			}
		})
	}
}

func TestAnalyzeInkStrength(t *testing.T) {
	th := signature.DefaultThresholds()

	strong := signature.AnalyzeInk(page(8, 100, 4), th)
	if strong.Strength != signature.StrengthStrong || strong.Strokes != 8 {
		t.Errorf("strong = %+v", strong)
	}
	if strong.Confidence > 95 {
		t.Errorf("confidence %v above cap", strong.Confidence)
	}

	weak := signature.AnalyzeInk(page(2, 40, 3), th)
	if weak.Strength != signature.StrengthWeak {
		t.Errorf("weak = %+v", weak)
	}

	// Strokes above the band are ignored.
	top := image.NewGray(image.Rect(0, 0, 600, 800))
	for i := range top.Pix {
		top.Pix[i] = 255
	}
	for x := 40; x < 500; x++ {
		for y := 100; y < 104; y++ {
			top.SetGray(x, y, color.Gray{})
		}
	}
	if a := signature.AnalyzeInk(top, th); a.Strength != signature.StrengthNone {
		t.Errorf("ink outside the band counted: %+v", a)
	}
}
