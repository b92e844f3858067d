package validation

import (
	"errors"
	"fmt"
	"strings"

	"pita/internal/document"
)

// Code identifies the kind of an alert.
type Code string

const (
	DocumentoFaltante   Code = "DOCUMENTO_FALTANTE"
	NombreInconsistente Code = "NOMBRE_INCONSISTENTE"
	NombreNoEncontrado  Code = "NOMBRE_NO_ENCONTRADO"
	NumeroInconsistente Code = "NUMERO_INCONSISTENTE"
	NumeroNoEncontrado  Code = "NUMERO_NO_ENCONTRADO"
	FirmaFaltante       Code = "FIRMA_FALTANTE"
	FirmaIndeterminada  Code = "FIRMA_INDETERMINADA"
	CampoFaltante       Code = "CAMPO_FALTANTE"
	LineaRechazo        Code = "LINEA_RECHAZO"
	PaginaNoClasificada Code = "PAGINA_NO_CLASIFICADA"
)

// blocking codes make a packet INCOMPLETO.
var blocking = map[Code]bool{
	DocumentoFaltante:  true,
	FirmaFaltante:      true,
	FirmaIndeterminada: true,
}

// Alert is one finding of the validator.
type Alert struct {
	Code    Code
	Message string
}

func (a Alert) String() string {
	return a.Message
}

// ErrInconsistent is returned when documents of a packet disagree.
var ErrInconsistent = errors.New("packet documents are inconsistent")

func missingDocument(t document.Type) Alert {
	return Alert{DocumentoFaltante, fmt.Sprintf("Falta documento %s", t)}
}

func inconsistentName(a, b string) Alert {
	return Alert{NombreInconsistente, fmt.Sprintf("Nombre inconsistente: '%s' vs '%s'", a, b)}
}

func nameNotFound() Alert {
	return Alert{NombreNoEncontrado, "No se encontró nombre del solicitante"}
}

func inconsistentNumber(found []typedValue) Alert {
	parts := make([]string, len(found))
	for i, f := range found {
		parts[i] = fmt.Sprintf("%s=%s", f.Type, f.Value)
	}
	return Alert{NumeroInconsistente, "Números de solicitud inconsistentes: " + strings.Join(parts, ", ")}
}

func numberNotFound() Alert {
	return Alert{NumeroNoEncontrado, "No se encontró número de solicitud"}
}

func missingSignature(t document.Type) Alert {
	return Alert{FirmaFaltante, fmt.Sprintf("Falta firma en %s", t)}
}

func indeterminateSignature(t document.Type) Alert {
	return Alert{FirmaIndeterminada, fmt.Sprintf("Firma indeterminada en %s (signature presence indeterminate)", t)}
}

func missingField(t document.Type, field string) Alert {
	return Alert{CampoFaltante, fmt.Sprintf("Campo faltante en %s: %s", t, field)}
}

func rejectionLine(t document.Type, value string) Alert {
	return Alert{LineaRechazo, fmt.Sprintf("Línea de rechazo con texto en %s: %s", t, value)}
}

func unclassifiedPage(page int) Alert {
	return Alert{PaginaNoClasificada, fmt.Sprintf("Página %d no clasificada", page)}
}
