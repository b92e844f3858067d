package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pita/internal/logger"
	"pita/internal/ocr"
	"pita/internal/pdf"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [pdf-file]",
	Short: "Make a PDF searchable with the configured OCR engine",
	Long: `Run one PDF through the configured OCR engine and write <base>_OCR.pdf plus
the page texts (<base>_OCR.txt, pages separated by form feeds) to the output
folder.

The engine is chosen with OCR_ENGINE:
  ocrmypdf   - external ocrmypdf command (OCR_COMMAND, OCR_LANGUAGES)
  vision     - Google Cloud Vision document text detection
  documentai - Google Document AI OCR processor
  textlayer  - reuse the text layer of already searchable PDFs

Google engines need GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS.`,
	Example: `  # Write scan_OCR.pdf and scan_OCR.txt next to the input
  pita ocr scan.pdf

  # Write into another folder and print metadata as JSON
  pita ocr scan.pdf -o out --json`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput is printed when --json is set.
type OCROutput struct {
	FileName           string    `json:"file_name"`
	SearchablePDF      string    `json:"searchable_pdf"`
	TextFile           string    `json:"text_file"`
	Engine             string    `json:"engine"`
	InputPages         int       `json:"input_pages,omitempty"`
	PageCount          int       `json:"page_count"`
	Confidence         float32   `json:"confidence,omitempty"`
	LanguageCodes      []string  `json:"language_codes,omitempty"`
	ProcessedAt        time.Time `json:"processed_at"`
	ProcessingDuration string    `json:"processing_duration"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output folder (default: folder of the input)")
	ocrCmd.Flags().String("languages", "", "OCR languages, e.g. spa+eng (default: OCR_LANGUAGES)")
	ocrCmd.Flags().Bool("json", false, "Print metadata as JSON")
	ocrCmd.Flags().Int("timeout", 600, "Processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputDir, _ := cmd.Flags().GetString("output")
	languages, _ := cmd.Flags().GetString("languages")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	pdfPath := args[0]
	if outputDir == "" {
		outputDir = filepath.Dir(pdfPath)
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if languages == "" {
		languages = cfg.OCRLanguages
	}

	log.Info().
		Str("file", pdfPath).
		Str("output", outputDir).
		Str("engine", cfg.OCREngine).
		Int("timeout", timeoutSecs).
		Msg("Starting OCR processing")

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

	inputPages, err := pdf.NewTool().PageCount(pdfPath)
	if err != nil {
		log.Warn().Err(err).Msg("Could not count input pages")
	}

	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	searchable := filepath.Join(outputDir, base+"_OCR.pdf")
	textFile := filepath.Join(outputDir, base+"_OCR.txt")

	result, err := ocrService.Process(ctx, ocr.Request{
		InputPath:  pdfPath,
		OutputPath: searchable,
		Languages:  languages,
	})
	if err != nil {
		return handleOCRError(err, log)
	}
	if err := ocr.WriteSidecar(textFile, result.Pages); err != nil {
		return fmt.Errorf("failed to write page texts: %w", err)
	}

	if inputPages > 0 && inputPages != result.PageCount {
		log.Warn().
			Int("input_pages", inputPages).
			Int("page_count", result.PageCount).
			Msg("OCR page count differs from input")
	}

	log.Info().
		Int("page_count", result.PageCount).
		Float32("confidence", result.Confidence).
		Dur("duration", result.ProcessingDuration).
		Str("output_file", searchable).
		Msg("OCR processing completed successfully")

	if !jsonOutput {
		fmt.Printf("✅ %s (%d páginas, %s)\n", searchable, result.PageCount, result.Engine)
		return nil
	}

	data, err := json.MarshalIndent(OCROutput{
		FileName:           filepath.Base(pdfPath),
		SearchablePDF:      searchable,
		TextFile:           textFile,
		Engine:             result.Engine,
		InputPages:         inputPages,
		PageCount:          result.PageCount,
		Confidence:         result.Confidence,
		LanguageCodes:      result.LanguageCodes,
		ProcessedAt:        result.ProcessedAt,
		ProcessingDuration: result.ProcessingDuration.String(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to create JSON output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// validatePDFFile checks that the file exists, is a regular file and is not empty.
func validatePDFFile(pdfPath string, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(pdfPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().
				Str("file", pdfPath).
				Msg("PDF file not found")
			return nil, fmt.Errorf("PDF file not found: %s", pdfPath)
		}
		if os.IsPermission(err) {
			log.Error().
				Str("file", pdfPath).
				Msg("Permission denied accessing PDF file")
			return nil, fmt.Errorf("permission denied accessing PDF file: %s", pdfPath)
		}
		return nil, fmt.Errorf("error accessing PDF file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", pdfPath)
	}

	if !strings.EqualFold(filepath.Ext(pdfPath), ".pdf") {
		log.Warn().
			Str("file", pdfPath).
			Msg("File does not have .pdf extension")
	}

	if fileInfo.Size() == 0 {
		log.Error().
			Str("file", pdfPath).
			Msg("PDF file is empty")
		return nil, fmt.Errorf("PDF file is empty: %s", pdfPath)
	}

	return fileInfo, nil
}

// handleOCRError provides user-friendly error messages for OCR failures
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("OCR processing failed")

	switch {
	case errors.Is(err, ocr.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout or OCR_TIMEOUT: %w", err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("OCR processing was canceled")
	case errors.Is(err, ocr.ErrUnavailable):
		return fmt.Errorf("OCR engine unavailable. Check OCR_ENGINE, OCR_COMMAND and the Google Cloud credentials: %w", err)
	case errors.Is(err, ocr.ErrPDFTooLarge):
		return fmt.Errorf("PDF file is too large for the selected engine: %w", err)
	case errors.Is(err, ocr.ErrInvalidPDF):
		return fmt.Errorf("invalid or corrupted PDF file. Please check the file integrity: %w", err)
	case errors.Is(err, ocr.ErrEmptyDocument):
		return fmt.Errorf("no readable text found in the document: %w", err)
	default:
		return fmt.Errorf("OCR processing failed: %w", err)
	}
}
