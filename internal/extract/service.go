// Package extract pulls typed fields out of the OCR text of classified
// documents.
package extract

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"pita/internal/document"
	"pita/internal/logger"
)

// Service extracts the fields of one document type from its combined text.
//
// The returned map never holds empty values; a field that was not found is
// absent. When required fields are missing the map is still returned together
// with a *PartialError.
type Service interface {
	Extract(ctx context.Context, docType document.Type, text string) (map[string]string, error)
}

// Document is the extraction result of one document type of a packet.
type Document struct {
	Type   document.Type
	Pages  []int
	Fields map[string]string
}

// RuleExtractor applies the built-in per-type rules.
type RuleExtractor struct {
	log zerolog.Logger
}

// NewRuleExtractor creates the rule-based extractor.
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{log: logger.WithComponent("extract")}
}

// Extract implements Service.
func (r *RuleExtractor) Extract(ctx context.Context, docType document.Type, text string) (map[string]string, error) {
	const op = "Extract"

	if !docType.Known() {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrUnknownType, docType)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	fields := make(map[string]string)
	for _, rule := range rules[docType] {
		if value, ok := applyRule(rule, text); ok {
			fields[rule.Field] = value
		}
	}

	r.log.Debug().
		Str("doc_type", string(docType)).
		Int("fields", len(fields)).
		Msg("Fields extracted")

	if missing := Missing(docType, fields); len(missing) > 0 {
		return fields, &PartialError{DocType: docType, Missing: missing}
	}
	return fields, nil
}

func applyRule(rule Rule, text string) (string, bool) {
	if rule.Special != nil {
		return rule.Special(text)
	}
	for _, re := range rule.Patterns {
		m := re.FindStringSubmatch(text)
		if m == nil || len(m) < 2 {
			continue
		}
		value := Clean(m[1])
		if value == "" {
			continue
		}
		normalize := rule.Normalize
		if normalize == nil {
			normalize = keep
		}
		return normalize(value)
	}
	return "", false
}
