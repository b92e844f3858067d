package pdf

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strconv"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"pita/internal/signature"
)

// PageImages serves the largest embedded image of each page of a scanned
// PDF. Scans carry one full-page image per page, which is what the
// handwriting analysis inspects.
type PageImages struct {
	path string

	mu    sync.Mutex
	cache map[int]image.Image
}

var _ signature.ImageSource = (*PageImages)(nil)

// NewPageImages opens page images of the PDF at path lazily.
func NewPageImages(path string) *PageImages {
	return &PageImages{path: path, cache: make(map[int]image.Image)}
}

// PageImage returns the decoded image of a 1-based page, or
// signature.ErrNoImage when the page has no decodable image.
func (p *PageImages) PageImage(ctx context.Context, page int) (image.Image, error) {
	const op = "PageImage"

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if img, ok := p.cache[page]; ok {
		if img == nil {
			return nil, signature.ErrNoImage
		}
		return img, nil
	}

	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	var best image.Image
	bestArea := 0
	digest := func(img model.Image, singleImgPerPage bool, maxPageDigits int) error {
		decoded, _, err := image.Decode(img)
		if err != nil {
			// Unsupported filters (JBIG2, CCITT) are skipped.
			return nil
		}
		b := decoded.Bounds()
		if area := b.Dx() * b.Dy(); area > bestArea {
			best, bestArea = decoded, area
		}
		return nil
	}
	if err := api.ExtractImages(f, []string{strconv.Itoa(page)}, digest, relaxedConfig()); err != nil {
		return nil, fmt.Errorf("%s: page %d: %w", op, page, err)
	}

	p.cache[page] = best
	if best == nil {
		return nil, signature.ErrNoImage
	}
	return best, nil
}
