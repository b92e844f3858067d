// Package report assembles the result record of a packet and renders it as
// JSON and as plain text.
package report

import (
	"encoding/json"
	"time"

	"pita/internal/document"
	"pita/internal/extract"
	"pita/internal/signature"
	"pita/internal/validation"
)

// Report is the canonical result of one packet. Both renditions are
// produced from this value.
type Report struct {
	Archivo              string                             `json:"archivo"`
	TotalPaginas         int                                `json:"total_paginas"`
	ResumenValidacion    validation.Status                  `json:"resumen_validacion"`
	DocumentosDetectados map[document.Type]DetectedDocument `json:"documentos_detectados"`
	Validaciones         validation.Checks                  `json:"validaciones"`
	Alertas              []string                           `json:"alertas"`

	GeneratedAt time.Time `json:"-"`
}

// DetectedDocument is one recognized document type of the packet.
type DetectedDocument struct {
	Paginas []int `json:"paginas"`
	Datos   Data  `json:"datos"`
}

// Data holds the extracted fields and, for types that require one, the
// signature verdict.
type Data struct {
	Fields    map[string]string
	Signature *signature.Record
}

// MarshalJSON flattens the fields and adds "firma" when present.
func (d Data) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Fields)+1)
	for k, v := range d.Fields {
		out[k] = v
	}
	if d.Signature != nil {
		out["firma"] = d.Signature
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (d *Data) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d.Fields = make(map[string]string, len(raw))
	for k, v := range raw {
		if k == "firma" {
			var rec signature.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			d.Signature = &rec
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		d.Fields[k] = s
	}
	return nil
}

// Input is the in-memory state of an analyzed packet.
type Input struct {
	Archivo    string
	TotalPages int
	Documents  map[document.Type]extract.Document
	Signatures map[document.Type]signature.Record
	Validation validation.Result
	Now        time.Time
}

// Build assembles the report. Documents of unknown type never appear.
func Build(in Input) *Report {
	r := &Report{
		Archivo:              in.Archivo,
		TotalPaginas:         in.TotalPages,
		ResumenValidacion:    in.Validation.Status,
		DocumentosDetectados: make(map[document.Type]DetectedDocument, len(in.Documents)),
		Validaciones:         in.Validation.Checks,
		Alertas:              in.Validation.Messages(),
		GeneratedAt:          in.Now,
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now()
	}

	for t, doc := range in.Documents {
		if !t.Known() {
			continue
		}
		det := DetectedDocument{
			Paginas: append([]int{}, doc.Pages...),
			Datos:   Data{Fields: make(map[string]string, len(doc.Fields))},
		}
		for k, v := range doc.Fields {
			if v != "" {
				det.Datos.Fields[k] = v
			}
		}
		if t.RequiresSignature() {
			rec, ok := in.Signatures[t]
			if !ok {
				rec = signature.Record{Presence: document.TriUnknown, Variant: signature.VariantNone}
			}
			det.Datos.Signature = &rec
		}
		r.DocumentosDetectados[t] = det
	}
	return r
}

// DocumentTypes returns the detected types in priority order.
func (r *Report) DocumentTypes() []document.Type {
	var out []document.Type
	for _, t := range document.Types {
		if _, ok := r.DocumentosDetectados[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
