package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pita/internal/logger"
	"pita/internal/ocr"
	"pita/internal/packet"
	"pita/internal/pipeline"
	"pita/internal/report"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [pdf-file]",
	Short: "Analyze one packet PDF and write its JSON and text results",
	Long: `Run OCR and the full analysis (classification, extraction, signature
detection, validation) on a single packet PDF without touching the folder
layout or the audit log.

The results are written as <name>.json and <name>.txt to the output folder;
the text report is also printed unless --quiet is set. Use --skip-ocr for
PDFs that already carry a text layer.`,
	Example: `  # Verify a merged packet and write the results next to it
  pita verify 1234567890.pdf

  # Verify an already searchable PDF into ./out
  pita verify 1234567890_OCR.pdf --skip-ocr -o out`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringP("output", "o", "", "Output folder (default: folder of the input)")
	verifyCmd.Flags().Bool("skip-ocr", false, "Read the existing text layer instead of running OCR")
	verifyCmd.Flags().BoolP("quiet", "q", false, "Do not print the text report")
	verifyCmd.Flags().Int("timeout", 900, "Processing timeout in seconds")
}

func runVerify(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("verify")

	outputDir, _ := cmd.Flags().GetString("output")
	skipOCR, _ := cmd.Flags().GetBool("skip-ocr")
	quiet, _ := cmd.Flags().GetBool("quiet")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	pdfPath := args[0]
	if outputDir == "" {
		outputDir = filepath.Dir(pdfPath)
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if skipOCR {
		cfg.OCREngine = "textlayer"
	}

	if _, err := validatePDFFile(pdfPath, log); err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	ctx, cancel := signalContext(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	ocrService, err := createOCRService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := ocr.Close(ocrService); err != nil {
			log.Warn().Err(err).Msg("Failed to close OCR service")
		}
	}()

	analyzer, err := createAnalyzer(cfg, log)
	if err != nil {
		return err
	}

	name := packet.Sanitize(strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath)))
	if name == "" {
		name = "paquete"
	}

	tmp, err := os.MkdirTemp("", "pita-verify-")
	if err != nil {
		return fmt.Errorf("failed to create work folder: %w", err)
	}
	defer os.RemoveAll(tmp)

	searchable := filepath.Join(tmp, name+"_OCR.pdf")
	result, err := ocrService.Process(ctx, ocr.Request{
		InputPath:  pdfPath,
		OutputPath: searchable,
		Languages:  cfg.OCRLanguages,
	})
	if err != nil {
		return handleOCRError(err, log)
	}

	rep, err := analyzer.Analyze(ctx, pipeline.AnalyzeInput{
		Archivo: name + ".pdf",
		PDFPath: searchable,
		Pages:   result.Pages,
		Now:     time.Now(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Analysis failed")
		return fmt.Errorf("analysis failed: %w", err)
	}

	paths := report.Paths{
		JSON: filepath.Join(outputDir, name+".json"),
		Text: filepath.Join(outputDir, name+".txt"),
	}
	if err := report.Write(rep, paths); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	log.Info().
		Str("status", string(rep.ResumenValidacion)).
		Int("pages", rep.TotalPaginas).
		Int("alerts", len(rep.Alertas)).
		Str("json", paths.JSON).
		Msg("Packet verified")

	if !quiet {
		if err := rep.WriteText(os.Stdout); err != nil {
			return fmt.Errorf("failed to print report: %w", err)
		}
	}
	return nil
}
