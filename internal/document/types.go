// Package document defines the document types of a loan-quote packet and
// classifies OCR'd pages into them.
package document

import "encoding/json"

// Type is a recognized document kind.
type Type string

const (
	CartaSolicitud         Type = "CARTA_SOLICITUD"
	EstudioTitulo          Type = "ESTUDIO_TITULO"
	AutorizacionSeguros    Type = "AUTORIZACION_SEGUROS"
	DivulgacionesProductos Type = "DIVULGACIONES_PRODUCTOS"
	DivulgacionesTitulo    Type = "DIVULGACIONES_TITULO"
	Unknown                Type = "UNKNOWN"
)

// Types lists the known types in classification priority order.
var Types = []Type{
	CartaSolicitud,
	EstudioTitulo,
	AutorizacionSeguros,
	DivulgacionesProductos,
	DivulgacionesTitulo,
}

// Known reports whether t is one of the five recognized types.
func (t Type) Known() bool {
	for _, k := range Types {
		if t == k {
			return true
		}
	}
	return false
}

// RequiresSignature reports whether the type must carry a signature.
func (t Type) RequiresSignature() bool {
	switch t {
	case AutorizacionSeguros, DivulgacionesTitulo, DivulgacionesProductos:
		return true
	default:
		return false
	}
}

// Priority is the position of t in the classification order, or len(Types)
// for unknown types.
func (t Type) Priority() int {
	for i, k := range Types {
		if t == k {
			return i
		}
	}
	return len(Types)
}

// Tri is a three-valued truth: true, false or unknown.
type Tri int8

const (
	TriUnknown Tri = iota
	TriFalse
	TriTrue
)

// TriOf converts a bool.
func TriOf(b bool) Tri {
	if b {
		return TriTrue
	}
	return TriFalse
}

func (t Tri) String() string {
	switch t {
	case TriTrue:
		return "true"
	case TriFalse:
		return "false"
	default:
		return "null"
	}
}

// Known reports whether the value is true or false.
func (t Tri) Known() bool {
	return t != TriUnknown
}

// MarshalJSON encodes unknown as null.
func (t Tri) MarshalJSON() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tri) UnmarshalJSON(data []byte) error {
	var b *bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	switch {
	case b == nil:
		*t = TriUnknown
	case *b:
		*t = TriTrue
	default:
		*t = TriFalse
	}
	return nil
}

// PageClassification is the type assigned to one page.
type PageClassification struct {
	Page      int // 1-based
	Type      Type
	Signature string // id of the matched predicate
}
