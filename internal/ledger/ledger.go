package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"pita/internal/logger"
)

// Ledger is the per-packet retry state reconstructed from the audit log.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string][]Entry
	order   []string
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[string][]Entry)}
}

// Load parses the audit log at path. A missing log is an empty ledger;
// malformed rows are skipped.
func Load(path string) (*Ledger, error) {
	const op = "Load"

	l := New()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("%s: failed to open log: %w", op, err)
	}
	defer f.Close()

	log := logger.WithComponent("ledger")

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rowNum := 0
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				log.Warn().Err(err).Int("row", rowNum).Msg("Skipping malformed log row")
				continue
			}
			return nil, fmt.Errorf("%s: failed to read log: %w", op, err)
		}
		if rowNum == 1 && len(row) > 0 && row[0] == "archivo" {
			continue
		}
		entry, err := parseEntry(row)
		if err != nil {
			log.Warn().Err(err).Int("row", rowNum).Msg("Skipping unreadable log row")
			continue
		}
		l.record(entry)
	}
	return l, nil
}

func parseEntry(row []string) (Entry, error) {
	if len(row) < 3 {
		return Entry{}, fmt.Errorf("expected 6 columns, got %d", len(row))
	}
	e := Entry{
		Packet: row[0],
		Stage:  Stage(row[1]),
		Result: Result(row[2]),
	}
	if e.Packet == "" {
		return Entry{}, fmt.Errorf("empty packet id")
	}
	if len(row) > 3 {
		if t, err := time.Parse(time.RFC3339Nano, row[3]); err == nil {
			e.Time = t
		} else if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999", row[3], time.Local); err == nil {
			e.Time = t
		}
	}
	if len(row) > 4 {
		e.Message = row[4]
	}
	if len(row) > 5 {
		if n, err := strconv.Atoi(row[5]); err == nil {
			e.Attempt = n
		}
	}
	return e, nil
}

func (l *Ledger) record(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[e.Packet]; !ok {
		l.order = append(l.order, e.Packet)
	}
	l.entries[e.Packet] = append(l.entries[e.Packet], e)
}

// Entries returns the rows of one packet in log order.
func (l *Ledger) Entries(id string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries[id]...)
}

// Packets returns every packet id seen, in first-appearance order.
func (l *Ledger) Packets() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}

// Attempts is the number of failed attempts recorded for a packet.
func (l *Ledger) Attempts(id string) int {
	n := 0
	for _, e := range l.Entries(id) {
		if e.Result == ResultError {
			n++
		}
	}
	return n
}

// Completed reports whether the packet has a successful completion row.
func (l *Ledger) Completed(id string) bool {
	for _, e := range l.Entries(id) {
		if e.Stage == StageComplete && e.Result == ResultOK {
			return true
		}
	}
	return false
}

// Moved reports whether the packet was routed to the error folder.
func (l *Ledger) Moved(id string) bool {
	for _, e := range l.Entries(id) {
		if e.Stage == StageMoved && e.Result == ResultLimit {
			return true
		}
	}
	return false
}

// LastError returns the most recent ERROR row of a packet.
func (l *Ledger) LastError(id string) (Entry, bool) {
	entries := l.Entries(id)
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Result == ResultError {
			return entries[i], true
		}
	}
	return Entry{}, false
}

// ResumeStage is the stage the next attempt starts from: the last failed
// stage after the last completion, or StageUnion when nothing failed since.
// Artifacts are not checked here.
func (l *Ledger) ResumeStage(id string) Stage {
	entries := l.Entries(id)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Stage == StageComplete && e.Result == ResultOK {
			break
		}
		if e.Result == ResultError && e.Stage.Index() >= 0 {
			return e.Stage
		}
	}
	return StageUnion
}

// Status summarizes one packet for reporting.
type Status struct {
	Packet    string
	Attempts  int
	Completed bool
	Moved     bool
	Resume    Stage
	LastError string
	UpdatedAt time.Time
}

// Summary returns a Status per packet, most recently updated first.
func (l *Ledger) Summary() []Status {
	var out []Status
	for _, id := range l.Packets() {
		s := Status{
			Packet:    id,
			Attempts:  l.Attempts(id),
			Completed: l.Completed(id),
			Moved:     l.Moved(id),
			Resume:    l.ResumeStage(id),
		}
		if e, ok := l.LastError(id); ok {
			s.LastError = e.Message
		}
		if entries := l.Entries(id); len(entries) > 0 {
			s.UpdatedAt = entries[len(entries)-1].Time
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}
