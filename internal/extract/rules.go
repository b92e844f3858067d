package extract

import (
	"regexp"

	"pita/internal/document"
)

// Rule extracts one field. Patterns are tried in order and the first match
// with a non-empty capture wins. Special rules read the whole text instead.
type Rule struct {
	Field     string
	Patterns  []*regexp.Regexp
	Normalize Normalizer
	Special   func(text string) (string, bool)
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?im)` + e)
	}
	return out
}

const (
	applicantName = `Nombre\s+del\s+Solicitante[:\s]*([A-ZÁÉÍÓÚÑ][A-Za-záéíóúñÁÉÍÓÚÑ\s]+?)(?:\n|Nombre\s+del\s+Co|$)`
	requestNumber = `N[uú]mero\s+de\s+Solicitud[:\s]*(\d{10})`
	loanNumber    = `N[uú]mero\s+de\s+pr[eé]stamo[:\s]*(\d{10})`
)

var rules = map[document.Type][]Rule{
	document.CartaSolicitud: {
		{Field: "nombre_solicitante", Patterns: patterns(applicantName)},
		{Field: "direccion_postal", Patterns: patterns(`Direcci[oó]n\s+Postal[:\s]*([^\n]+(?:\n[^\n]*(?:PR|00\d{3}))?)`)},
		{Field: "ssn", Patterns: patterns(
			`N[uú]mero\s+de\s+Seguro\s+Social\s+del\s+Solicitante[:\s]*(\d{3}-\d{2}-\d{4})`,
			`(\d{3}-\d{2}-\d{4})`,
		)},
		{Field: "email", Patterns: patterns(`Correo\s+Electr[oó]nico[:\s]*([^\n]+)`), Normalize: Email},
		{Field: "cantidad_hipoteca", Patterns: patterns(
			`Cantidad\s+de\s+la\s+Hipoteca[:\s]*\$?\s*([\d,]+\.?\d*)`,
			`Hipoteca[:\s]*\$?\s*([\d,]+\.?\d*)`,
		), Normalize: Currency},
		{Field: "precio_venta", Patterns: patterns(`Precio\s+de\s+Venta[:\s]*\$?\s*([\d,]+\.?\d*)`), Normalize: Currency},
		{Field: "tipo_prestamo", Patterns: patterns(`Tipo\s+de\s+Pr[eé]stamo[:\s]*([^\n]+)`)},
		{Field: "fecha_estimada_cierre", Patterns: patterns(`Fecha\s+estimada\s+de\s+cierre[:\s]*(\d{1,2}/\d{1,2}/\d{4})`), Normalize: Date},
	},
	document.EstudioTitulo: {
		{Field: "finca", Patterns: patterns(
			`FINCA\s*[:\s]*(?:N[uú]mero\s*)?([\d,]+)`,
			`Finca\s+n[uú]mero\s+([\d,]+)`,
		), Normalize: Finca},
		{Field: "tipo_propiedad", Special: PropertyType},
		{Field: "fecha_documento", Special: LastDate},
	},
	document.AutorizacionSeguros: {
		{Field: "nombre_solicitante", Patterns: patterns(applicantName)},
		{Field: "num_solicitud", Patterns: patterns(requestNumber)},
		{Field: "linea_rechazo", Special: RejectionLine},
	},
	document.DivulgacionesTitulo: {
		{Field: "num_solicitud", Patterns: patterns(requestNumber, loanNumber)},
	},
	document.DivulgacionesProductos: {
		{Field: "num_solicitud", Patterns: patterns(loanNumber, requestNumber)},
	},
}

var required = map[document.Type][]string{
	document.CartaSolicitud:         {"nombre_solicitante"},
	document.EstudioTitulo:          {"finca"},
	document.AutorizacionSeguros:    {"nombre_solicitante", "num_solicitud"},
	document.DivulgacionesTitulo:    {"num_solicitud"},
	document.DivulgacionesProductos: {"num_solicitud"},
}

// Rules returns the extraction rules of a type.
func Rules(t document.Type) []Rule {
	return rules[t]
}

// Missing lists the required fields absent from fields.
func Missing(t document.Type, fields map[string]string) []string {
	var out []string
	for _, f := range required[t] {
		if fields[f] == "" {
			out = append(out, f)
		}
	}
	return out
}
