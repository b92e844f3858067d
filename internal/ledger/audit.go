// Package ledger keeps the append-only processing log and the retry state
// derived from it.
//
// The log is a semicolon separated file shared with external automation:
//
//	archivo;etapa;resultado;timestamp;mensaje;intento_num
//
// Every attempt of every packet leaves one row per stage. The number of
// ERROR rows of a packet is its attempt count; the stage of the last ERROR
// row after the last completion is where the next attempt resumes.
package ledger

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pita/internal/logger"
)

// Header is the first line of every audit log.
const Header = "archivo;etapa;resultado;timestamp;mensaje;intento_num"

// MaxMessageLen bounds the mensaje column, in characters.
const MaxMessageLen = 100

// Stage names a pipeline step in the log.
type Stage string

const (
	StageUnion    Stage = "UNION"
	StageOCR      Stage = "OCR"
	StageAnalysis Stage = "ANALISIS"
	StageJSON     Stage = "JSON"
	StageArchive  Stage = "ARCHIVO"
	StageComplete Stage = "COMPLETO"
	StageMoved    Stage = "MOVIDO_ERROR"
)

// Stages lists the resumable stages in execution order.
var Stages = []Stage{StageUnion, StageOCR, StageAnalysis, StageJSON, StageArchive}

// Index returns the position of s in Stages, or -1 for non-resumable stages.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Result is the outcome column of a row.
type Result string

const (
	ResultOK      Result = "OK"
	ResultError   Result = "ERROR"
	ResultLimit   Result = "LIMITE"
	ResultIgnored Result = "IGNORADO"
)

// Entry is one row of the audit log. Attempt 0 is written as "-".
type Entry struct {
	Packet  string
	Stage   Stage
	Result  Result
	Time    time.Time
	Message string
	Attempt int
}

func (e Entry) record() []string {
	attempt := "-"
	if e.Attempt > 0 {
		attempt = strconv.Itoa(e.Attempt)
	}
	return []string{
		e.Packet,
		string(e.Stage),
		string(e.Result),
		e.Time.Format(time.RFC3339),
		SanitizeMessage(e.Message),
		attempt,
	}
}

// AuditLog appends rows to the log file and mirrors them into a Ledger.
// Appends from concurrent workers are serialized; each row reaches the
// file in a single write on an O_APPEND descriptor.
type AuditLog struct {
	mu     sync.Mutex
	path   string
	ledger *Ledger
	now    func() time.Time
	log    zerolog.Logger
}

// Init creates the log with its header when it does not exist yet.
func Init(path string) error {
	const op = "Init"

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%s: failed to create log folder: %w", op, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("%s: failed to create log: %w", op, err)
	}
	defer f.Close()
	if _, err := f.WriteString(Header + "\n"); err != nil {
		return fmt.Errorf("%s: failed to write header: %w", op, err)
	}
	return nil
}

// Open initializes the log at path and loads its current state.
func Open(path string) (*AuditLog, error) {
	if err := Init(path); err != nil {
		return nil, err
	}
	l, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &AuditLog{
		path:   path,
		ledger: l,
		now:    time.Now,
		log:    logger.WithComponent("audit-log"),
	}, nil
}

// Path returns the log file location.
func (a *AuditLog) Path() string {
	return a.path
}

// Ledger returns the retry state, kept current with every append.
func (a *AuditLog) Ledger() *Ledger {
	return a.ledger
}

// SetClock replaces the timestamp source.
func (a *AuditLog) SetClock(now func() time.Time) {
	a.now = now
}

// Append writes one row. A zero Time is filled from the clock.
func (a *AuditLog) Append(e Entry) error {
	const op = "Append"

	a.mu.Lock()
	defer a.mu.Unlock()

	if e.Time.IsZero() {
		e.Time = a.now()
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'
	if err := w.Write(e.record()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	f, err := os.OpenFile(a.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("%s: failed to open log: %w", op, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("%s: failed to write row: %w", op, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%s: failed to close log: %w", op, err)
	}

	a.ledger.record(e)
	a.log.Debug().
		Str("packet", e.Packet).
		Str("stage", string(e.Stage)).
		Str("result", string(e.Result)).
		Msg("Audit row appended")
	return nil
}

var messageReplacer = strings.NewReplacer(";", ",", "\r\n", " ", "\n", " ", "\r", " ", "\"", "'")

// SanitizeMessage makes a message safe for the mensaje column and cuts it
// to MaxMessageLen characters. Empty messages become "-".
func SanitizeMessage(msg string) string {
	msg = strings.TrimSpace(messageReplacer.Replace(msg))
	if msg == "" {
		return "-"
	}
	runes := []rune(msg)
	if len(runes) > MaxMessageLen {
		msg = strings.TrimSpace(string(runes[:MaxMessageLen]))
	}
	return msg
}
