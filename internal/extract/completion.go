package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"pita/internal/document"
	"pita/internal/logger"
)

// ChatClient is the part of the OpenAI client the completion extractor uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// CompletionConfig configures the completion extractor.
type CompletionConfig struct {
	Model       string
	MaxRetries  int
	Temperature float32
	MaxTextLen  int // OCR text sent to the model is cut at this many characters
}

// CompletionExtractor asks a chat model for required fields the wrapped
// extractor could not find. Answers are accepted only when they have the
// shape the rules would have produced.
type CompletionExtractor struct {
	inner  Service
	client ChatClient
	config CompletionConfig
	log    zerolog.Logger
}

// valueShape is the accepted form of completed values.
var valueShape = map[string]*regexp.Regexp{
	"nombre_solicitante": regexp.MustCompile(`^[A-Za-záéíóúñÁÉÍÓÚÑ][A-Za-záéíóúñÁÉÍÓÚÑ .'\-]{3,80}$`),
	"num_solicitud":      regexp.MustCompile(`^\d{10}$`),
	"finca":              regexp.MustCompile(`^\d[\d,]*$`),
}

// NewCompletionExtractor creates an OpenAI-backed extractor around inner.
func NewCompletionExtractor(inner Service, apiKey string, config CompletionConfig) (*CompletionExtractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("NewCompletionExtractor: OPENAI_API_KEY is required")
	}
	return NewCompletionExtractorWithClient(inner, openai.NewClient(apiKey), config), nil
}

// NewCompletionExtractorWithClient creates the extractor with an explicit client.
func NewCompletionExtractorWithClient(inner Service, client ChatClient, config CompletionConfig) *CompletionExtractor {
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 3
	}
	if config.MaxTextLen <= 0 {
		config.MaxTextLen = 12000
	}
	return &CompletionExtractor{
		inner:  inner,
		client: client,
		config: config,
		log:    logger.WithComponent("extract-completion"),
	}
}

// Extract implements Service.
func (c *CompletionExtractor) Extract(ctx context.Context, docType document.Type, text string) (map[string]string, error) {
	fields, err := c.inner.Extract(ctx, docType, text)

	var partial *PartialError
	if !errors.As(err, &partial) {
		return fields, err
	}

	answers, cerr := c.complete(ctx, docType, text, partial.Missing)
	if cerr != nil {
		c.log.Warn().
			Err(cerr).
			Str("doc_type", string(docType)).
			Strs("missing_fields", partial.Missing).
			Msg("Completion failed, keeping rule results")
		return fields, err
	}

	for _, field := range partial.Missing {
		value := Clean(answers[field])
		if value == "" {
			continue
		}
		if shape, ok := valueShape[field]; ok && !shape.MatchString(value) {
			c.log.Warn().
				Str("field", field).
				Str("value", value).
				Msg("Discarding completed value with unexpected shape")
			continue
		}
		fields[field] = value
	}

	c.log.Info().
		Str("doc_type", string(docType)).
		Int("fields", len(fields)).
		Msg("Completion merged")

	if missing := Missing(docType, fields); len(missing) > 0 {
		return fields, &PartialError{DocType: docType, Missing: missing}
	}
	return fields, nil
}

func (c *CompletionExtractor) complete(ctx context.Context, docType document.Type, text string, missing []string) (map[string]string, error) {
	const op = "complete"

	text = truncateRunes(text, c.config.MaxTextLen)
	prompt := fmt.Sprintf(
		"Tipo de documento: %s\nCampos requeridos: %s\n\nTexto OCR:\n%s",
		docType, strings.Join(missing, ", "), text,
	)

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.config.Model,
			Temperature: c.config.Temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			MaxTokens: 300,
		})
		if err != nil {
			lastErr = err
			c.log.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_retries", c.config.MaxRetries).
				Msg("Chat completion failed, retrying")
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no response choices")
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &raw); err != nil {
			lastErr = fmt.Errorf("failed to parse completion JSON: %w", err)
			continue
		}

		answers := make(map[string]string, len(missing))
		for _, field := range missing {
			if s, ok := raw[field].(string); ok {
				answers[field] = s
			}
		}
		return answers, nil
	}

	return nil, fmt.Errorf("%s: %w after %d attempts: %v", op, ErrCompletionFailed, c.config.MaxRetries, lastErr)
}

const systemPrompt = `Extraes datos de documentos hipotecarios de Puerto Rico escaneados con OCR.
Responde solo con un objeto JSON cuyas claves son los campos requeridos.
Usa una cadena vacía cuando el dato no aparece en el texto. No inventes datos.
nombre_solicitante: nombre completo del solicitante.
num_solicitud: número de solicitud o de préstamo de 10 dígitos.
finca: número de finca, solo dígitos y comas.`
