package signature

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Thresholds tune the handwritten signature analysis.
type Thresholds struct {
	InkPercent     float64 // strong verdict: ink above this percentage...
	MinStrokes     int     // ...and at least this many strokes
	WeakInkPercent float64 // weak verdict: ink above this percentage...
	WeakMinStrokes int     // ...or at least this many strokes
	Region         float64 // lower fraction of the page inspected
	DarkThreshold  uint8   // gray level below which a pixel is ink
}

// DefaultThresholds returns the documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		InkPercent:     0.5,
		MinStrokes:     3,
		WeakInkPercent: 0.2,
		WeakMinStrokes: 2,
		Region:         0.4,
		DarkThreshold:  200,
	}
}

const (
	// maxAnalysisWidth bounds the work per page; larger scans are downscaled.
	maxAnalysisWidth = 1200

	minStrokeArea = 20
	maxStrokeArea = 5000
)

// Strength grades a handwriting verdict.
type Strength int

const (
	StrengthNone Strength = iota
	StrengthWeak
	StrengthStrong
)

// InkAnalysis is the measurement of one page region.
type InkAnalysis struct {
	InkPercent float64
	Strokes    int
	Strength   Strength
	Confidence float64
}

func (a InkAnalysis) detail() string {
	switch a.Strength {
	case StrengthStrong:
		return fmt.Sprintf("Firma manuscrita detectada (%d trazos, %.1f%% tinta)", a.Strokes, a.InkPercent)
	case StrengthWeak:
		return fmt.Sprintf("Posible firma (%d trazos)", a.Strokes)
	default:
		return "Area de firma vacia"
	}
}

// AnalyzeInk measures ink density and stroke count in the lower band of a
// page image.
func AnalyzeInk(img image.Image, th Thresholds) InkAnalysis {
	gray := lowerBand(img, th.Region)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return InkAnalysis{}
	}

	ink := make([]bool, w*h)
	count := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y < th.DarkThreshold {
				ink[y*w+x] = true
				count++
			}
		}
	}

	a := InkAnalysis{
		InkPercent: float64(count) / float64(w*h) * 100,
		Strokes:    countStrokes(ink, w, h),
	}
	switch {
	case a.InkPercent > th.InkPercent && a.Strokes >= th.MinStrokes:
		a.Strength = StrengthStrong
		a.Confidence = min(95, 50+a.InkPercent*10+float64(a.Strokes)*2)
	case a.InkPercent > th.WeakInkPercent || a.Strokes >= th.WeakMinStrokes:
		a.Strength = StrengthWeak
		a.Confidence = 30 + a.InkPercent*5 + float64(a.Strokes)*5
	default:
		a.Confidence = 10
	}
	return a
}

// lowerBand crops the lower fraction of img into a grayscale image no wider
// than maxAnalysisWidth.
func lowerBand(img image.Image, fraction float64) *image.Gray {
	b := img.Bounds()
	if fraction <= 0 || fraction > 1 {
		fraction = 1
	}
	top := b.Max.Y - int(float64(b.Dy())*fraction)
	src := image.Rect(b.Min.X, top, b.Max.X, b.Max.Y)

	dw, dh := src.Dx(), src.Dy()
	if dw > maxAnalysisWidth {
		dh = dh * maxAnalysisWidth / dw
		dw = maxAnalysisWidth
	}
	dst := image.NewGray(image.Rect(0, 0, dw, dh))
	if dw == src.Dx() {
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	}
	return dst
}

// countStrokes counts 8-connected ink components whose area looks like a
// pen stroke rather than noise or a filled block.
func countStrokes(ink []bool, w, h int) int {
	seen := make([]bool, len(ink))
	stack := make([]int, 0, 256)
	strokes := 0

	for start := range ink {
		if !ink[start] || seen[start] {
			continue
		}
		area := 0
		seen[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			area++
			x, y := i%w, i/w
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					j := ny*w + nx
					if ink[j] && !seen[j] {
						seen[j] = true
						stack = append(stack, j)
					}
				}
			}
		}
		if area > minStrokeArea && area < maxStrokeArea {
			strokes++
		}
	}
	return strokes
}
