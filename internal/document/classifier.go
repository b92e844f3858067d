package document

import (
	"fmt"
	"strings"
)

// Rule is one entry of the classification table. A page matches when its
// folded text contains any identifier and none of the negatives.
type Rule struct {
	Type        Type
	ID          string
	Identifiers []string
	Negatives   []string
}

func (r Rule) matches(folded string) bool {
	for _, neg := range r.Negatives {
		if strings.Contains(folded, neg) {
			return false
		}
	}
	for _, id := range r.Identifiers {
		if strings.Contains(folded, id) {
			return true
		}
	}
	return false
}

// Rules is evaluated top to bottom, first match wins. The order is the
// type priority and must not be reordered.
var Rules = []Rule{
	{
		Type: CartaSolicitud,
		ID:   "carta_solicitud",
		Identifiers: []string{
			"SOLICITUD DE COTIZACION POLIZA DE TITULO",
			"SOLICITUD DE COTIZACION",
			"POPULARMORTGAGE.COM",
		},
		Negatives: []string{"AUTORIZACION PARA REFERIR", "DIVULGACIONES"},
	},
	{
		Type:        EstudioTitulo,
		ID:          "estudio_titulo",
		Identifiers: []string{"ESTUDIO", "CAPITAL TITLE"},
		Negatives: []string{
			"DIVULGACIONES SEGURO DE TITULO",
			"POPULARMORTGAGE.COM",
			"CONTINUACION",
		},
	},
	{
		Type:        EstudioTitulo,
		ID:          "estudio_titulo/continuacion",
		Identifiers: []string{"CONTINUACION"},
		Negatives:   []string{"AUTORIZACION", "DIVULGACIONES"},
	},
	{
		Type: AutorizacionSeguros,
		ID:   "autorizacion_seguros",
		Identifiers: []string{
			"AUTORIZACION PARA REFERIR LOS SEGUROS",
			"AUTORIZACION PARA REFERIR",
		},
	},
	{
		Type:        DivulgacionesProductos,
		ID:          "divulgaciones_productos",
		Identifiers: []string{"DIVULGACIONES RELACIONADAS A LOS PRODUCTOS DE SEGURO"},
	},
	{
		Type:        DivulgacionesTitulo,
		ID:          "divulgaciones_titulo",
		Identifiers: []string{"DIVULGACIONES SEGURO DE TITULO"},
	},
}

// Classify assigns a type to one page. Pages matching no rule come back as
// UNKNOWN together with ErrClassificationAmbiguous.
func Classify(page int, text string) (PageClassification, error) {
	folded := Fold(text)
	for _, rule := range Rules {
		if rule.matches(folded) {
			return PageClassification{Page: page, Type: rule.Type, Signature: rule.ID}, nil
		}
	}
	return PageClassification{Page: page, Type: Unknown},
		fmt.Errorf("page %d: %w", page, ErrClassificationAmbiguous)
}

// ClassifyPages classifies every page of a packet. The returned errors only
// describe UNKNOWN pages; every page gets a classification.
func ClassifyPages(pages []string) ([]PageClassification, []error) {
	out := make([]PageClassification, len(pages))
	var errs []error
	for i, text := range pages {
		c, err := Classify(i+1, text)
		if err != nil {
			errs = append(errs, err)
		}
		out[i] = c
	}
	return out, errs
}

// PagesByType groups page numbers by type, UNKNOWN excluded.
func PagesByType(classes []PageClassification) map[Type][]int {
	out := make(map[Type][]int)
	for _, c := range classes {
		if c.Type.Known() {
			out[c.Type] = append(out[c.Type], c.Page)
		}
	}
	return out
}

// UnknownPages returns the page numbers classified UNKNOWN.
func UnknownPages(classes []PageClassification) []int {
	var out []int
	for _, c := range classes {
		if !c.Type.Known() {
			out = append(out, c.Page)
		}
	}
	return out
}

// JoinPages concatenates the text of the given 1-based pages with newlines.
func JoinPages(pages []string, numbers []int) string {
	var parts []string
	for _, n := range numbers {
		if n >= 1 && n <= len(pages) {
			parts = append(parts, pages[n-1])
		}
	}
	return strings.Join(parts, "\n")
}
