package pipeline

import (
	"context"
	"fmt"
	"os"

	"pita/internal/ledger"
	"pita/internal/ocr"
	"pita/internal/report"
)

type stage struct {
	stage ledger.Stage
	run   func(ctx context.Context, at *attempt) (string, error)
}

// stages lists the resumable steps in execution order.
func (p *Pipeline) stages() []stage {
	return []stage{
		{ledger.StageUnion, p.merge},
		{ledger.StageOCR, p.recognize},
		{ledger.StageAnalysis, p.analyze},
		{ledger.StageJSON, p.writeResults},
		{ledger.StageArchive, p.archiveAndClean},
	}
}

func (p *Pipeline) merge(ctx context.Context, at *attempt) (string, error) {
	if err := p.merger.Merge(ctx, at.pk.Paths(), at.files.merged); err != nil {
		return "", ioErr(err)
	}
	return fmt.Sprintf("%d PDFs unidos", len(at.pk.Pages)), nil
}

func (p *Pipeline) recognize(ctx context.Context, at *attempt) (string, error) {
	res, err := p.ocr.Process(ctx, ocr.Request{
		InputPath:  at.files.merged,
		OutputPath: at.files.ocrPDF,
		Languages:  p.languages,
	})
	if err != nil {
		os.Remove(at.files.ocrPDF)
		return "", err
	}
	if err := ocr.WriteSidecar(at.files.sidecar, res.Pages); err != nil {
		os.Remove(at.files.ocrPDF)
		return "", ioErr(err)
	}
	at.pages = res.Pages
	return fmt.Sprintf("%d páginas (%s)", res.PageCount, res.Engine), nil
}

func (p *Pipeline) analyze(ctx context.Context, at *attempt) (string, error) {
	if at.pages == nil {
		pages, err := ocr.ReadSidecar(at.files.sidecar)
		if err != nil {
			return "", ioErr(err)
		}
		at.pages = pages
	}
	rep, err := p.analyzer.Analyze(ctx, AnalyzeInput{
		Archivo: at.files.archived,
		PDFPath: at.files.ocrPDF,
		Pages:   at.pages,
		Now:     p.now(),
	})
	if err != nil {
		return "", err
	}
	at.report = rep
	return fmt.Sprintf("%s, %d alertas", rep.ResumenValidacion, len(rep.Alertas)), nil
}

func (p *Pipeline) writeResults(ctx context.Context, at *attempt) (string, error) {
	if err := report.Write(at.report, report.Paths{JSON: at.files.json, Text: at.files.text}); err != nil {
		return "", ioErr(err)
	}
	return at.pk.ID + ".json", nil
}

// archiveAndClean stores the searchable PDF and removes everything the
// packet left in the intake and temporary folders.
func (p *Pipeline) archiveAndClean(ctx context.Context, at *attempt) (string, error) {
	dest := ""
	if exists(at.files.ocrPDF) {
		stored, err := p.archive.Store(ctx, at.files.ocrPDF, at.files.archived)
		if err != nil {
			return "", ioErr(err)
		}
		dest = stored
	} else {
		at.log.Warn().Msg("Searchable PDF already archived")
	}

	for _, page := range at.pk.Pages {
		if err := os.Remove(page.Path); err != nil && !os.IsNotExist(err) {
			at.log.Warn().Err(err).Str("file", page.Name).Msg("Failed to delete intake page")
		}
	}
	for _, path := range []string{at.files.merged, at.files.sidecar} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			at.log.Warn().Err(err).Str("file", path).Msg("Failed to delete temporary file")
		}
	}
	if err := ledger.RemoveManifest(p.layout.OCR, at.pk.ID); err != nil {
		at.log.Warn().Err(err).Msg("Failed to remove manifest")
	}

	if dest == "" {
		return at.files.archived, nil
	}
	return dest, nil
}
