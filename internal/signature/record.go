// Package signature decides whether a document carries a signature, using
// text patterns first and page-image analysis last.
package signature

import "pita/internal/document"

// Variant names the way a signature was found.
type Variant string

const (
	VariantTimestamp         Variant = "Timestamp"
	VariantPostCertification Variant = "PostCertification"
	VariantXMark             Variant = "XMark"
	VariantHandwritten       Variant = "Handwritten"
	VariantNone              Variant = "None"
)

// Record is the signature verdict of one document. Presence is unknown when
// neither text nor image analysis could decide.
type Record struct {
	Presence document.Tri `json:"presente"`
	Variant  Variant      `json:"tipo"`
	Detail   string       `json:"detalle"`
}
