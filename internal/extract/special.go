package extract

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"pita/internal/document"
)

const (
	PropertyApartment    = "APARTAMENTO"
	PropertyHouse        = "CASA"
	PropertyUndetermined = "INDETERMINADO"

	RejectionBlank = "CORRECTO (Está en blanco)"
)

var (
	apartmentWords = []string{"PROPIEDAD HORIZONTAL", "APARTAMENTO", "CONDOMINIO", "APT"}
	houseWords     = []string{"SOLAR", "CASA", "TERRENO", "URBANIZACION", "URBANA"}
)

// PropertyType classifies the property described by a title study.
func PropertyType(text string) (string, bool) {
	folded := document.Fold(text)
	for _, w := range apartmentWords {
		if strings.Contains(folded, w) {
			return PropertyApartment, true
		}
	}
	for _, w := range houseWords {
		if strings.Contains(folded, w) {
			return PropertyHouse, true
		}
	}
	return PropertyUndetermined, true
}

var (
	longDate    = regexp.MustCompile(`(?i)(\d{1,2}\s+de\s+(?:enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|octubre|noviembre|diciembre)\s+de\s+\d{4})`)
	numericDate = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})`)
)

// LastDate returns the last "DD de MES de YYYY" date of the text, falling
// back to the last d/m/yyyy date, zero-padded.
func LastDate(text string) (string, bool) {
	if all := longDate.FindAllStringSubmatch(text, -1); len(all) > 0 {
		return Clean(all[len(all)-1][1]), true
	}
	if all := numericDate.FindAllStringSubmatch(text, -1); len(all) > 0 {
		return Date(all[len(all)-1][1])
	}
	return "", false
}

var (
	rejectionLine = []*regexp.Regexp{
		regexp.MustCompile(`(?i)que\s+no\s+desea\s+que\s+Popular[^:]*gestione[:\s]*([^\n]{0,100})`),
		regexp.MustCompile(`(?i)favor\s+indicar\s+el\s+seguro\s+que\s+no\s+desea[^:]*:[:\s]*([^\n]{0,100})`),
		regexp.MustCompile(`(?i)Insurance\s+gestione[:\s]*([^\n]{0,100})`),
	}
	rejectionFiller = regexp.MustCompile(`[_\-.\s:]+`)
	formWords       = []string{
		"firma del solicitante", "firma del co-solicitante", "firma",
		"solicitante", "co-solicitante", "fecha", "mortg", "rev",
	}
)

// RejectionLine checks that the "insurance you do not want us to manage"
// line of an authorization is blank. ok=false means the line was not found.
func RejectionLine(text string) (string, bool) {
	for _, re := range rejectionLine {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		content := strings.TrimSpace(m[1])
		if utf8.RuneCountInString(rejectionFiller.ReplaceAllString(content, "")) < 3 {
			return RejectionBlank, true
		}
		lower := strings.ToLower(content)
		for _, w := range formWords {
			if strings.Contains(lower, w) {
				return RejectionBlank, true
			}
		}
		return fmt.Sprintf("ALERTA: Contiene texto ('%s')", truncateRunes(content, 50)), true
	}
	return "", false
}

// RejectionFlagged reports whether a linea_rechazo value carries text.
func RejectionFlagged(value string) bool {
	return strings.HasPrefix(value, "ALERTA")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
