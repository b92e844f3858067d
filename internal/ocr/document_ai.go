package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"pita/internal/logger"
)

// DocumentAIConfig locates the OCR processor.
type DocumentAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
}

// DocumentAIService implements Service using a Google Document AI OCR processor.
type DocumentAIService struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIService creates a Document AI backed service with credentials from environment.
func NewDocumentAIService(ctx context.Context, config DocumentAIConfig) (*DocumentAIService, error) {
	const op = "NewDocumentAIService"

	if config.ProjectID == "" || config.ProcessorID == "" {
		return nil, WrapOCRError(op, ErrUnavailable, "project and processor id are required")
	}
	if config.Location == "" {
		config.Location = "us"
	}

	var clientOptions []option.ClientOption
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}
	creds := googleClientOptions()
	clientOptions = append(clientOptions, creds...)

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if len(creds) == 0 {
			return nil, WrapOCRError(op, ErrUnavailable, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, fmt.Errorf("%w: %w", ErrUnavailable, err),
			fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return NewDocumentAIServiceWithClient(config, client), nil
}

// NewDocumentAIServiceWithClient creates a service with explicit config and client (for testing).
func NewDocumentAIServiceWithClient(config DocumentAIConfig, client *documentai.DocumentProcessorClient) *DocumentAIService {
	return &DocumentAIService{
		client: client,
		config: config,
		log:    logger.WithComponent("ocr-document-ai"),
	}
}

// Process implements Service.
func (p *DocumentAIService) Process(ctx context.Context, req Request) (*Result, error) {
	const op = "Process"
	start := time.Now()

	pdfBytes, err := readPDF(req.InputPath)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to read PDF data")
	}

	resp, err := p.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: p.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  pdfBytes,
				MimeType: "application/pdf",
			},
		},
	})
	if err != nil {
		return nil, p.handleProcessingError(op, err)
	}
	if resp.Document == nil {
		return nil, WrapOCRError(op, ErrOCRFailed, "no document in response")
	}

	result := pagesFromDocument(resp.Document)
	if strings.TrimSpace(strings.Join(result.Pages, "")) == "" {
		return nil, WrapOCRError(op, ErrEmptyDocument, "")
	}
	if err := copyPDF(req.InputPath, req.OutputPath); err != nil {
		return nil, WrapOCRError(op, err, "failed to write output PDF")
	}

	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(start)

	p.log.Info().
		Int("pages", result.PageCount).
		Float32("confidence", result.Confidence).
		Msg("Document AI OCR completed")

	return result, nil
}

// pagesFromDocument resolves each page's layout text anchor against the
// document text.
func pagesFromDocument(doc *documentaipb.Document) *Result {
	result := &Result{Engine: "documentai"}
	var confidenceSum float32
	languageSet := make(map[string]bool)

	for _, page := range doc.Pages {
		var text strings.Builder
		if page.Layout != nil {
			text.WriteString(anchorText(doc.Text, page.Layout.TextAnchor))
			confidenceSum += page.Layout.Confidence
		}
		for _, lang := range page.DetectedLanguages {
			if lang.LanguageCode != "" {
				languageSet[lang.LanguageCode] = true
			}
		}
		result.Pages = append(result.Pages, text.String())
	}

	result.PageCount = len(result.Pages)
	if result.PageCount > 0 {
		result.Confidence = confidenceSum / float32(result.PageCount)
	}
	for lang := range languageSet {
		result.LanguageCodes = append(result.LanguageCodes, lang)
	}
	return result
}

func anchorText(text string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		start, end := int(seg.StartIndex), int(seg.EndIndex)
		if start < 0 || end > len(text) || start > end {
			continue
		}
		b.WriteString(text[start:end])
	}
	return b.String()
}

// processorName constructs the full processor name for Document AI API.
func (p *DocumentAIService) processorName() string {
	if p.config.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			p.config.ProjectID, p.config.Location, p.config.ProcessorID, p.config.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		p.config.ProjectID, p.config.Location, p.config.ProcessorID)
}

// handleProcessingError converts Document AI errors to OCR errors.
func (p *DocumentAIService) handleProcessingError(op string, err error) error {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "PERMISSION_DENIED"), strings.Contains(errStr, "UNAUTHENTICATED"):
		return WrapOCRError(op, ErrUnavailable, "insufficient permissions for Document AI")
	case strings.Contains(errStr, "QUOTA_EXCEEDED"), strings.Contains(errStr, "RESOURCE_EXHAUSTED"):
		return WrapOCRError(op, ErrUnavailable, "Document AI API quota exceeded")
	case strings.Contains(errStr, "NOT_FOUND"):
		return WrapOCRError(op, ErrUnavailable, fmt.Sprintf("processor not found: %s", p.config.ProcessorID))
	case strings.Contains(errStr, "INVALID_ARGUMENT"):
		return WrapOCRError(op, ErrInvalidPDF, "document format not supported or corrupted")
	case strings.Contains(errStr, "DeadlineExceeded") || strings.Contains(errStr, "context deadline exceeded"):
		return WrapOCRError(op, ErrTimeout, "processing timeout")
	default:
		return WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Document AI error: %v", err))
	}
}

// Close closes the underlying Document AI client.
func (p *DocumentAIService) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
