package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"pita/internal/document"
	"pita/internal/extract"
)

const rule = "============================================================"

// WriteText writes the human-readable rendition of the report.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder

	b.WriteString("REPORTE DE VERIFICACIÓN DE PRÉSTAMOS\n")
	fmt.Fprintf(&b, "Fecha: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	b.WriteString(rule + "\n\n")

	fmt.Fprintf(&b, "Archivo: %s\n", r.Archivo)
	fmt.Fprintf(&b, "Estado: %s\n", r.ResumenValidacion)
	fmt.Fprintf(&b, "Páginas: %d\n\n", r.TotalPaginas)

	b.WriteString("DOCUMENTOS DETECTADOS:\n")
	for _, t := range r.DocumentTypes() {
		doc := r.DocumentosDetectados[t]
		fmt.Fprintf(&b, "  %s (Páginas %s):\n", t, pageList(doc.Paginas))
		for _, field := range fieldOrder(t, doc.Datos.Fields) {
			fmt.Fprintf(&b, "    %s: %s\n", field, doc.Datos.Fields[field])
		}
		if sig := doc.Datos.Signature; sig != nil {
			fmt.Fprintf(&b, "    firma: presente=%s tipo=%s detalle=%s\n", sig.Presence, sig.Variant, sig.Detail)
		}
		b.WriteString("\n")
	}

	b.WriteString("VALIDACIONES:\n")
	fmt.Fprintf(&b, "  nombre_consistente: %s\n", r.Validaciones.NameConsistent)
	fmt.Fprintf(&b, "  numero_solicitud_consistente: %s\n", r.Validaciones.NumberConsistent)
	fmt.Fprintf(&b, "  firmas_completas: %s\n", r.Validaciones.SignaturesComplete)

	if len(r.Alertas) > 0 {
		b.WriteString("\nALERTAS:\n")
		for _, a := range r.Alertas {
			fmt.Fprintf(&b, "  ! %s\n", a)
		}
	}

	b.WriteString("\n" + rule + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func pageList(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// fieldOrder lists fields in rule order, then any others alphabetically.
func fieldOrder(t document.Type, fields map[string]string) []string {
	var out []string
	seen := make(map[string]bool, len(fields))
	for _, r := range extract.Rules(t) {
		if _, ok := fields[r.Field]; ok {
			out = append(out, r.Field)
			seen[r.Field] = true
		}
	}
	var rest []string
	for k := range fields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
