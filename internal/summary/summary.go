// Package summary collects the per-packet outcome of a run and exports it.
package summary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Outcome is the run-level result of one packet.
type Outcome string

const (
	OutcomeOK      Outcome = "OK"
	OutcomeError   Outcome = "ERROR"
	OutcomeIgnored Outcome = "IGNORADO"
	OutcomeLimit   Outcome = "LIMITE_ERRORES"
)

// Row describes one packet of one run.
type Row struct {
	RunID       string
	Packet      string
	Outcome     Outcome
	Status      string // validation status, empty unless the packet completed
	Pages       int
	Alerts      int
	Applicant   string
	Number      string
	Stage       string // failed stage, if any
	Message     string
	Attempts    int
	ProcessedAt time.Time
}

// Headers label the columns produced by Values.
var Headers = []string{
	"Ejecución", "Paquete", "Resultado", "Estado", "Páginas", "Alertas",
	"Solicitante", "Núm. Solicitud", "Etapa", "Mensaje", "Intentos", "Procesado",
}

// Values returns the row in column order.
func (r Row) Values() []interface{} {
	processed := ""
	if !r.ProcessedAt.IsZero() {
		processed = r.ProcessedAt.Format("2006-01-02 15:04:05")
	}
	return []interface{}{
		r.RunID,
		r.Packet,
		string(r.Outcome),
		r.Status,
		r.Pages,
		r.Alerts,
		r.Applicant,
		r.Number,
		r.Stage,
		r.Message,
		r.Attempts,
		processed,
	}
}

// Counts are the totals printed at the end of a run.
type Counts struct {
	OK      int
	Error   int
	Ignored int
	Limit   int
}

// Total is the number of packets seen.
func (c Counts) Total() int {
	return c.OK + c.Error + c.Ignored + c.Limit
}

func (c Counts) String() string {
	return fmt.Sprintf("OK=%d ERROR=%d IGNORADO=%d LIMITE_ERRORES=%d", c.OK, c.Error, c.Ignored, c.Limit)
}

// Run accumulates rows from concurrent workers.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time

	mu     sync.Mutex
	rows   []Row
	counts Counts
}

// NewRun starts an empty run summary.
func NewRun(id string, startedAt time.Time) *Run {
	return &Run{ID: id, StartedAt: startedAt}
}

// Add records one packet outcome.
func (r *Run) Add(row Row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row.RunID = r.ID
	r.rows = append(r.rows, row)
	switch row.Outcome {
	case OutcomeOK:
		r.counts.OK++
	case OutcomeError:
		r.counts.Error++
	case OutcomeIgnored:
		r.counts.Ignored++
	case OutcomeLimit:
		r.counts.Limit++
	}
}

// Rows returns a copy of the recorded rows.
func (r *Run) Rows() []Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Row(nil), r.rows...)
}

// Counts returns the current totals.
func (r *Run) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts
}

// Sink receives the rows of a finished run.
type Sink interface {
	Write(ctx context.Context, rows []Row) error
}

// MultiSink writes to every sink and joins their errors.
type MultiSink []Sink

// Write implements Sink.
func (m MultiSink) Write(ctx context.Context, rows []Row) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
