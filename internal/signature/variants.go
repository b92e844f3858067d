package signature

import (
	"fmt"
	"regexp"
	"strings"

	"pita/internal/document"
)

// TextVariant looks for a signature in whitespace-normalized text.
type TextVariant interface {
	Variant() Variant
	Find(text string) (detail string, ok bool)
}

// TextVariants are tried in this order.
var TextVariants = []TextVariant{
	timestampVariant{},
	certificationVariant{},
	xMarkVariant{},
}

var (
	areaWords = []string{
		"Firma del Solicitante", "Firma del Cliente", "Firma del Deudor",
		"Firma del Comprador", "Firma del Vendedor", "Firma del Propietario",
		"Firma del Representante", "Firma", "Signature", "Signed",
		"Firmado por", "Firmado",
	}
	certificationWords = []string{
		"Certifico", "Certify", "Declaro", "Declare", "Acepto",
		"Accept", "Autorizo", "Authorize", "Confirmo", "Confirm",
	}
)

const timeOfDay = `\d{1,2}:\d{2}\s*(?:AM|PM)?(?:\s*(?:PDT|PST|EST|CST|MST|UTC)?)?`

var (
	namedTimestamp = regexp.MustCompile(`(?i)([A-ZÁÉÍÓÚÑ][A-Za-záéíóúñÁÉÍÓÚÑ\s]{3,40}?)\s*(\d{1,2}/\d{1,2}/\d{4})\s+(` + timeOfDay + `)`)
	bareTimestamp  = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4}\s+` + timeOfDay + `)`)
	contextWords   = regexp.MustCompile(`(?i)(` + quoteAll(append(append([]string{}, areaWords...), certificationWords...)) + `)`)
	timestampStop  = []string{"DOCUMENTO", "SEGURO", "TITULO", "BANCO", "NUMERO", "FECHA", "PAGINA"}

	certifiedName = func() []*regexp.Regexp {
		out := make([]*regexp.Regexp, len(certificationWords))
		for i, w := range certificationWords {
			out[i] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(w) +
				`[^A-Z]{0,100}([A-ZÁÉÍÓÚÑ][A-Za-záéíóúñÁÉÍÓÚÑ\s]{5,40}?)(?:\d{1,2}/|\n|Firma|$)`)
		}
		return out
	}()
	certificationStop = []string{"DOCUMENTO", "SEGURO", "TITULO", "BANCO", "DIVULGACIONES", "PRESENTADAS"}

	xBeforeLine = regexp.MustCompile(`\b[xX]{1,3}\b\s*(?:Firma|Signature)|\b[xX]{1,3}\s*(?:___|---)`)
	xAfterLine  = regexp.MustCompile(`(?:Firma|Signature)\s*[:\s]*[xX]{1,3}\b`)
)

func quoteAll(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}

// plausibleName rejects captures that are document wording rather than names.
func plausibleName(name string, stop []string) bool {
	if len([]rune(name)) <= 5 {
		return false
	}
	folded := document.Fold(name)
	for _, w := range stop {
		if strings.Contains(folded, w) {
			return false
		}
	}
	return true
}

// timestampVariant matches electronic signatures such as
// "JUAN PEREZ GARCIA 10/10/2025 7:29 AM PDT".
type timestampVariant struct{}

func (timestampVariant) Variant() Variant { return VariantTimestamp }

func (timestampVariant) Find(text string) (string, bool) {
	if m := namedTimestamp.FindStringSubmatch(text); m != nil {
		name := strings.TrimSpace(m[1])
		if plausibleName(name, timestampStop) {
			return fmt.Sprintf("%s - %s %s", name, m[2], strings.TrimSpace(m[3])), true
		}
	}
	if contextWords.MatchString(text) {
		if m := bareTimestamp.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

// certificationVariant matches a name right after a certification clause.
type certificationVariant struct{}

func (certificationVariant) Variant() Variant { return VariantPostCertification }

func (certificationVariant) Find(text string) (string, bool) {
	for _, re := range certifiedName {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if plausibleName(name, certificationStop) {
			return name, true
		}
	}
	return "", false
}

// xMarkVariant matches an X written on a signature line.
type xMarkVariant struct{}

func (xMarkVariant) Variant() Variant { return VariantXMark }

func (xMarkVariant) Find(text string) (string, bool) {
	if xBeforeLine.MatchString(text) || xAfterLine.MatchString(text) {
		return "Marca X detectada", true
	}
	return "", false
}
