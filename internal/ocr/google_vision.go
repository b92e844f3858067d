package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"pita/internal/logger"
)

const (
	// MaxFileSizeBytes is the maximum file size for synchronous processing (20MB)
	MaxFileSizeBytes = 20 * 1024 * 1024

	// MaxPagesSync is the maximum number of pages per synchronous request
	MaxPagesSync = 5
)

// googleClientOptions resolves credentials from the environment.
func googleClientOptions() []option.ClientOption {
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credJSON))}
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credFile)}
	}
	return nil
}

// VisionService implements Service using Google Cloud Vision API.
type VisionService struct {
	client *vision.ImageAnnotatorClient
	log    zerolog.Logger
}

// NewVisionService creates a Vision backed service with credentials from environment.
func NewVisionService(ctx context.Context) (*VisionService, error) {
	const op = "NewVisionService"

	opts := googleClientOptions()
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(op, ErrUnavailable, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, fmt.Errorf("%w: %w", ErrUnavailable, err), "failed to create Vision client")
	}

	return NewVisionServiceWithClient(client), nil
}

// NewVisionServiceWithClient creates a service with an explicit client (for testing).
func NewVisionServiceWithClient(client *vision.ImageAnnotatorClient) *VisionService {
	return &VisionService{client: client, log: logger.WithComponent("ocr-vision")}
}

// Process implements Service. Vision accepts at most MaxPagesSync pages per
// request, so longer packets are sent in page windows.
func (g *VisionService) Process(ctx context.Context, req Request) (*Result, error) {
	const op = "Process"
	startTime := time.Now()

	pdfBytes, err := readPDF(req.InputPath)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to read PDF data")
	}

	hints := languageHints(req.languages())
	result := &Result{Engine: "vision"}
	var confidenceSum float32
	var confidenceCount int
	languageSet := make(map[string]bool)

	for first := int32(1); ; first += MaxPagesSync {
		pages := make([]int32, 0, MaxPagesSync)
		for p := first; p < first+MaxPagesSync; p++ {
			pages = append(pages, p)
		}

		resp, err := g.client.BatchAnnotateFiles(ctx, &visionpb.BatchAnnotateFilesRequest{
			Requests: []*visionpb.AnnotateFileRequest{{
				InputConfig: &visionpb.InputConfig{
					Content:  pdfBytes,
					MimeType: "application/pdf",
				},
				Features: []*visionpb.Feature{{
					Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION,
				}},
				ImageContext: &visionpb.ImageContext{LanguageHints: hints},
				Pages:        pages,
			}},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, WrapOCRError(op, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err()), "Vision API call interrupted")
			}
			return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
		}
		if len(resp.Responses) == 0 {
			return nil, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
		}

		fileResp := resp.Responses[0]
		if fileResp.Error != nil {
			// Asking past the last page is how the end of the document shows up.
			if first > 1 && len(result.Pages) > 0 {
				break
			}
			return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", fileResp.Error.Message))
		}

		for i, page := range fileResp.Responses {
			if page.Error != nil {
				return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("page %d: %s", int(first)+i, page.Error.Message))
			}
			text := ""
			if page.FullTextAnnotation != nil {
				text = page.FullTextAnnotation.Text
				for _, p := range page.FullTextAnnotation.Pages {
					if p.Confidence > 0 {
						confidenceSum += p.Confidence
						confidenceCount++
					}
					if p.Property != nil {
						for _, lang := range p.Property.DetectedLanguages {
							if lang.LanguageCode != "" {
								languageSet[lang.LanguageCode] = true
							}
						}
					}
				}
			}
			result.Pages = append(result.Pages, text)
		}

		total := int(fileResp.TotalPages)
		if total == 0 || len(result.Pages) >= total || len(fileResp.Responses) < MaxPagesSync {
			break
		}
	}

	if strings.TrimSpace(strings.Join(result.Pages, "")) == "" {
		return nil, WrapOCRError(op, ErrEmptyDocument, "")
	}

	if err := copyPDF(req.InputPath, req.OutputPath); err != nil {
		return nil, WrapOCRError(op, err, "failed to write output PDF")
	}

	if confidenceCount > 0 {
		result.Confidence = confidenceSum / float32(confidenceCount)
	}
	for lang := range languageSet {
		result.LanguageCodes = append(result.LanguageCodes, lang)
	}
	result.PageCount = len(result.Pages)
	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	g.log.Info().
		Int("pages", result.PageCount).
		Float32("confidence", result.Confidence).
		Msg("Vision OCR completed")

	return result, nil
}

// Close closes the underlying Vision client.
func (g *VisionService) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// readPDF loads a PDF within the synchronous size limit.
func readPDF(path string) ([]byte, error) {
	pdfBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(pdfBytes) > MaxFileSizeBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrPDFTooLarge, len(pdfBytes))
	}
	if len(pdfBytes) < 4 || string(pdfBytes[:4]) != "%PDF" {
		return nil, fmt.Errorf("%w: missing PDF header", ErrInvalidPDF)
	}
	return pdfBytes, nil
}

func copyPDF(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
