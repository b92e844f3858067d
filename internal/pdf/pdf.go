// Package pdf wraps the PDF operations of the pipeline: merging packet
// pages, counting pages and pulling page images for signature analysis.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"

	"pita/internal/logger"
)

// ErrNoInput is returned when a merge is asked for zero files.
var ErrNoInput = errors.New("no input files")

func relaxedConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Merger joins packet pages into one PDF.
type Merger interface {
	Merge(ctx context.Context, inputs []string, output string) error
}

// Tool is the pdfcpu backed implementation of the package operations.
type Tool struct {
	log zerolog.Logger
}

// NewTool creates a Tool.
func NewTool() *Tool {
	return &Tool{log: logger.WithComponent("pdf")}
}

// Merge writes inputs, in order, to output. A single input is copied.
func (t *Tool) Merge(ctx context.Context, inputs []string, output string) error {
	const op = "Merge"

	if len(inputs) == 0 {
		return fmt.Errorf("%s: %w", op, ErrNoInput)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	t.log.Debug().
		Int("inputs", len(inputs)).
		Str("output", filepath.Base(output)).
		Msg("Merging PDF pages")

	if len(inputs) == 1 {
		if err := copyFile(inputs[0], output); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	if err := api.MergeCreateFile(inputs, output, false, relaxedConfig()); err != nil {
		os.Remove(output)
		return fmt.Errorf("%s: failed to merge %d files: %w", op, len(inputs), err)
	}
	return nil
}

// PageCount returns the number of pages of a PDF file.
func (t *Tool) PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("PageCount: %w", err)
	}
	defer f.Close()
	n, err := api.PageCount(f, relaxedConfig())
	if err != nil {
		return 0, fmt.Errorf("PageCount: %s: %w", filepath.Base(path), err)
	}
	return n, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(src), err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(dst), err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}
