// Package validation cross-checks the documents of a packet and derives its
// final status.
package validation

import (
	"strings"

	"pita/internal/document"
	"pita/internal/extract"
	"pita/internal/signature"
)

// Status is the verdict of a packet.
type Status string

const (
	Aprobado          Status = "APROBADO"
	Incompleto        Status = "INCOMPLETO"
	RevisionRequerida Status = "REVISION_REQUERIDA"
)

// nameOverlap is the share of words two names must have in common.
const nameOverlap = 0.7

// Checks holds the three cross-document checks.
type Checks struct {
	NameConsistent     document.Tri `json:"nombre_consistente"`
	NumberConsistent   document.Tri `json:"numero_solicitud_consistente"`
	SignaturesComplete document.Tri `json:"firmas_completas"`
}

// Result is the outcome of validating one packet.
type Result struct {
	Checks Checks
	Alerts []Alert
	Status Status
}

// Messages returns the alert texts in order.
func (r Result) Messages() []string {
	out := make([]string, len(r.Alerts))
	for i, a := range r.Alerts {
		out[i] = a.Message
	}
	return out
}

// Input is everything the validator looks at.
type Input struct {
	Documents    map[document.Type]extract.Document
	Signatures   map[document.Type]signature.Record
	UnknownPages []int
}

// Validator validates packets against a set of required document types.
type Validator struct {
	required []document.Type
}

// New creates a validator. An empty required list means all known types.
func New(required []document.Type) *Validator {
	if len(required) == 0 {
		required = document.Types
	}
	sorted := make([]document.Type, 0, len(required))
	for _, t := range document.Types {
		for _, r := range required {
			if r == t {
				sorted = append(sorted, t)
				break
			}
		}
	}
	return &Validator{required: sorted}
}

// Validate runs every check. The result is a pure function of the input and
// is always usable; ErrInconsistent is returned next to it when a
// consistency check failed.
func (v *Validator) Validate(in Input) (Result, error) {
	var (
		res     Result
		missing []Alert
		names   []Alert
		numbers []Alert
		sigs    []Alert
		fields  []Alert
		reject  []Alert
		pages   []Alert
	)

	for _, t := range v.required {
		if _, ok := in.Documents[t]; !ok {
			missing = append(missing, missingDocument(t))
		}
	}

	res.Checks.NameConsistent, names = checkNames(in.Documents)
	res.Checks.NumberConsistent, numbers = checkNumbers(in.Documents)
	res.Checks.SignaturesComplete, sigs = checkSignatures(in.Documents, in.Signatures)

	for _, t := range document.Types {
		doc, ok := in.Documents[t]
		if !ok {
			continue
		}
		for _, f := range extract.Missing(t, doc.Fields) {
			fields = append(fields, missingField(t, f))
		}
		if value := doc.Fields["linea_rechazo"]; extract.RejectionFlagged(value) {
			reject = append(reject, rejectionLine(t, value))
		}
	}

	for _, p := range in.UnknownPages {
		pages = append(pages, unclassifiedPage(p))
	}

	for _, group := range [][]Alert{missing, names, numbers, sigs, fields, reject, pages} {
		res.Alerts = append(res.Alerts, group...)
	}
	res.Status = Derive(res.Alerts)

	if res.Checks.NameConsistent == document.TriFalse || res.Checks.NumberConsistent == document.TriFalse {
		return res, ErrInconsistent
	}
	return res, nil
}

// Derive computes the status from the alerts.
func Derive(alerts []Alert) Status {
	for _, a := range alerts {
		if blocking[a.Code] {
			return Incompleto
		}
	}
	if len(alerts) > 0 {
		return RevisionRequerida
	}
	return Aprobado
}

type typedValue struct {
	Type  document.Type
	Value string
}

func collect(docs map[document.Type]extract.Document, field string) []typedValue {
	var out []typedValue
	for _, t := range document.Types {
		if doc, ok := docs[t]; ok {
			if v := doc.Fields[field]; v != "" {
				out = append(out, typedValue{t, v})
			}
		}
	}
	return out
}

func checkNames(docs map[document.Type]extract.Document) (document.Tri, []Alert) {
	names := collect(docs, "nombre_solicitante")
	if len(names) == 0 {
		return document.TriUnknown, []Alert{nameNotFound()}
	}
	for _, other := range names[1:] {
		if !SameName(names[0].Value, other.Value) {
			return document.TriFalse, []Alert{inconsistentName(names[0].Value, other.Value)}
		}
	}
	return document.TriTrue, nil
}

func checkNumbers(docs map[document.Type]extract.Document) (document.Tri, []Alert) {
	numbers := collect(docs, "num_solicitud")
	if len(numbers) == 0 {
		return document.TriUnknown, []Alert{numberNotFound()}
	}
	for _, other := range numbers[1:] {
		if other.Value != numbers[0].Value {
			return document.TriFalse, []Alert{inconsistentNumber(numbers)}
		}
	}
	return document.TriTrue, nil
}

func checkSignatures(docs map[document.Type]extract.Document, sigs map[document.Type]signature.Record) (document.Tri, []Alert) {
	var (
		alerts  []Alert
		checked int
		absent  bool
		unknown bool
	)
	for _, t := range document.Types {
		if !t.RequiresSignature() {
			continue
		}
		if _, ok := docs[t]; !ok {
			continue
		}
		checked++
		switch sigs[t].Presence {
		case document.TriTrue:
		case document.TriFalse:
			absent = true
			alerts = append(alerts, missingSignature(t))
		default:
			unknown = true
			alerts = append(alerts, indeterminateSignature(t))
		}
	}
	switch {
	case checked == 0:
		return document.TriUnknown, nil
	case absent:
		return document.TriFalse, alerts
	case unknown:
		return document.TriUnknown, alerts
	default:
		return document.TriTrue, nil
	}
}

// SameName reports whether two names share at least 70% of their words,
// tolerating OCR noise in accents and casing.
func SameName(a, b string) bool {
	wa := strings.Fields(document.Fold(a))
	wb := strings.Fields(document.Fold(b))
	if len(wa) == 0 || len(wb) == 0 {
		return false
	}
	set := make(map[string]bool, len(wb))
	for _, w := range wb {
		set[w] = true
	}
	common := 0
	for _, w := range wa {
		if set[w] {
			common++
		}
	}
	return float64(common) >= float64(max(len(wa), len(wb)))*nameOverlap
}
