package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pita/internal/config"
	"pita/internal/document"
	"pita/internal/ledger"
	"pita/internal/ocr"
	"pita/internal/pipeline"
	"pita/internal/report"
	"pita/internal/storage"
	"pita/internal/summary"
)

var runStart = time.Date(2025, 10, 10, 9, 0, 0, 0, time.UTC)

const (
	solicitudPage = "SOLICITUD DE COTIZACION POLIZA DE TITULO\nNombre del Solicitante: Juan Pérez Rivera\nNúmero de solicitud: 1234567890"
	seguroPage    = "AUTORIZACION PARA REFERIR LOS SEGUROS\nEl solicitante autoriza la referencia."
)

type fakeMerger struct {
	mu     sync.Mutex
	calls  int
	inputs map[string][]string // file names merged into each output
}

func (m *fakeMerger) Merge(ctx context.Context, inputs []string, output string) error {
	m.mu.Lock()
	m.calls++
	if m.inputs == nil {
		m.inputs = make(map[string][]string)
	}
	names := make([]string, len(inputs))
	for i, in := range inputs {
		names[i] = filepath.Base(in)
	}
	m.inputs[filepath.Base(output)] = names
	m.mu.Unlock()
	return os.WriteFile(output, []byte(strings.Join(inputs, "\n")), 0o644)
}

func (m *fakeMerger) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *fakeMerger) Inputs(output string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs[output]
}

type fakeOCR struct {
	mu       sync.Mutex
	calls    int
	failures int // remaining calls that fail
	pages    []string
}

func (f *fakeOCR) Process(ctx context.Context, req ocr.Request) (*ocr.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, ocr.NewOCRError("Process", ocr.ErrOCRFailed, "exit status 2")
	}
	if err := os.WriteFile(req.OutputPath, []byte("%PDF-1.4 searchable"), 0o644); err != nil {
		return nil, err
	}
	return &ocr.Result{Pages: f.pages, PageCount: len(f.pages), Engine: "fake"}, nil
}

func (f *fakeOCR) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// flakyArchive fails its first calls, then stores through next.
type flakyArchive struct {
	failures int
	next     storage.Archive
}

func (a *flakyArchive) Store(ctx context.Context, src, name string) (string, error) {
	if a.failures > 0 {
		a.failures--
		return "", errors.New("archive volume unavailable")
	}
	return a.next.Store(ctx, src, name)
}

type env struct {
	layout  config.Layout
	merger  *fakeMerger
	ocr     *fakeOCR
	archive storage.Archive
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	layout := config.Layout{
		Inbox:   filepath.Join(root, "Entrada"),
		OCR:     filepath.Join(root, "OCR_temp"),
		Error:   filepath.Join(root, "Error"),
		JSON:    filepath.Join(root, "JSON"),
		TXT:     filepath.Join(root, "TXT"),
		Logs:    filepath.Join(root, "Logs"),
		Archive: filepath.Join(root, "Procesados"),
	}
	if err := os.MkdirAll(layout.Inbox, 0o755); err != nil {
		t.Fatal(err)
	}
	return &env{
		layout:  layout,
		merger:  &fakeMerger{},
		ocr:     &fakeOCR{pages: []string{solicitudPage, seguroPage}},
		archive: storage.NewLocalArchive(layout.Archive),
	}
}

func (e *env) drop(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(e.layout.Inbox, name), []byte("%PDF-1.4"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// newPipeline reopens the audit log so every call sees the persisted state,
// as a fresh process would.
func (e *env) newPipeline(t *testing.T, maxErrors int) *pipeline.Pipeline {
	t.Helper()
	audit, err := ledger.Open(e.layout.LogFile())
	if err != nil {
		t.Fatal(err)
	}
	audit.SetClock(func() time.Time { return runStart })

	p, err := pipeline.New(pipeline.Options{
		Layout:    e.layout,
		MaxErrors: maxErrors,
		MaxTmpAge: time.Hour,
		Workers:   2,
		OCR:       e.ocr,
		Merger:    e.merger,
		Analyzer:  pipeline.NewAnalyzer(pipeline.AnalyzerOptions{}),
		Archive:   e.archive,
		Audit:     audit,
		Clock:     func() time.Time { return runStart },
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func countEntries(entries []ledger.Entry, stage ledger.Stage, result ledger.Result) int {
	n := 0
	for _, e := range entries {
		if e.Stage == stage && e.Result == result {
			n++
		}
	}
	return n
}

func TestCandidatesGroupsIntake(t *testing.T) {
	e := newEnv(t)
	e.drop(t, "A-1-1.pdf", "A-1-2.pdf", "B.pdf")

	packets, err := e.newPipeline(t, 2).Candidates(runStart)
	if err != nil {
		t.Fatal(err)
	}
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(packets))
	}
	if packets[0].ID != "A" || len(packets[0].Pages) != 2 {
		t.Errorf("first packet = %s with %d pages", packets[0].ID, len(packets[0].Pages))
	}
	if !packets[1].Fallback || packets[1].ID != "PAQUETE_20251010_090000" {
		t.Errorf("second packet = %s (fallback %v)", packets[1].ID, packets[1].Fallback)
	}
}

func TestRunCompletesPacket(t *testing.T) {
	e := newEnv(t)
	e.drop(t, "A-1-1.pdf", "A-1-2.pdf")

	run, err := e.newPipeline(t, 2).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c := run.Counts(); c.OK != 1 || c.Total() != 1 {
		t.Fatalf("counts = %s", c)
	}

	for _, path := range []string{
		filepath.Join(e.layout.JSON, "A.json"),
		filepath.Join(e.layout.TXT, "A.txt"),
		filepath.Join(e.layout.Archive, "A.pdf"),
	} {
		if !exists(path) {
			t.Errorf("%s missing", path)
		}
	}
	for _, path := range []string{
		filepath.Join(e.layout.Inbox, "A-1-1.pdf"),
		filepath.Join(e.layout.OCR, "A_merged.pdf"),
		filepath.Join(e.layout.OCR, "A_OCR.txt"),
		ledger.ManifestPath(e.layout.OCR, "A"),
	} {
		if exists(path) {
			t.Errorf("%s left behind", path)
		}
	}

	led, err := ledger.Load(e.layout.LogFile())
	if err != nil {
		t.Fatal(err)
	}
	if !led.Completed("A") {
		t.Error("packet not marked completed")
	}
	entries := led.Entries("A")
	last := entries[len(entries)-1]
	if last.Message != "2 PDFs procesados" || last.Attempt != 1 {
		t.Errorf("last entry = %+v", last)
	}

	row := run.Rows()[0]
	if row.Applicant != "Juan Pérez Rivera" || row.Pages != 2 {
		t.Errorf("row = %+v", row)
	}
}

func TestRunWithoutImageAnalysisReportsIndeterminateSignature(t *testing.T) {
	e := newEnv(t)
	e.drop(t, "A-1-1.pdf")

	if _, err := e.newPipeline(t, 2).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(e.layout.JSON, "A.json"))
	if err != nil {
		t.Fatal(err)
	}
	var rep report.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatal(err)
	}

	doc, ok := rep.DocumentosDetectados["AUTORIZACION_SEGUROS"]
	if !ok || doc.Datos.Signature == nil {
		t.Fatalf("no signature recorded: %s", data)
	}
	if got := doc.Datos.Signature.Presence; got != document.TriUnknown {
		t.Errorf("presence = %s, want %s", got, document.TriUnknown)
	}
	var found bool
	for _, a := range rep.Alertas {
		if strings.Contains(a, "indeterminate") {
			found = true
		}
	}
	if !found {
		t.Errorf("alerts = %v, want an indeterminate signature alert", rep.Alertas)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.drop(t, "A-1-1.pdf")

	if _, err := e.newPipeline(t, 2).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	run, err := e.newPipeline(t, 2).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n := run.Counts().Total(); n != 0 {
		t.Errorf("second run handled %d packets, want 0", n)
	}

	e.drop(t, "A-1-1.pdf")
	run, err = e.newPipeline(t, 2).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c := run.Counts(); c.Ignored != 1 {
		t.Errorf("counts = %s, want one ignored packet", c)
	}
	if e.merger.Calls() != 1 {
		t.Errorf("merger called %d times, want 1", e.merger.Calls())
	}
}

func TestRunMovesPacketAfterErrorLimit(t *testing.T) {
	e := newEnv(t)
	e.ocr.failures = 10
	e.drop(t, "A-1-1.pdf", "A-1-2.pdf")

	for i := 1; i <= 2; i++ {
		run, err := e.newPipeline(t, 2).Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if c := run.Counts(); c.Error != 1 {
			t.Fatalf("run %d: counts = %s", i, c)
		}
		if row := run.Rows()[0]; row.Stage != string(ledger.StageOCR) || row.Attempts != i {
			t.Errorf("run %d: row = %+v", i, row)
		}
	}

	run, err := e.newPipeline(t, 2).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c := run.Counts(); c.Limit != 1 {
		t.Fatalf("third run counts = %s", c)
	}
	for _, name := range []string{"A-1-1.pdf", "A-1-2.pdf"} {
		if !exists(filepath.Join(e.layout.Error, name)) {
			t.Errorf("%s not moved to error folder", name)
		}
	}
	if exists(filepath.Join(e.layout.OCR, "A_merged.pdf")) {
		t.Error("merged file left behind")
	}

	led, err := ledger.Load(e.layout.LogFile())
	if err != nil {
		t.Fatal(err)
	}
	if !led.Moved("A") || led.Attempts("A") != 3 {
		t.Errorf("moved = %v, attempts = %d", led.Moved("A"), led.Attempts("A"))
	}

	packets, err := e.newPipeline(t, 2).Candidates(runStart)
	if err != nil {
		t.Fatal(err)
	}
	if len(packets) != 0 {
		t.Errorf("moved packet still a candidate")
	}
}

func TestRunResumesFromFailedStage(t *testing.T) {
	e := newEnv(t)
	e.ocr.failures = 1
	e.drop(t, "A-1-1.pdf")

	run, err := e.newPipeline(t, 2).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c := run.Counts(); c.Error != 1 {
		t.Fatalf("first run counts = %s", c)
	}
	if !exists(filepath.Join(e.layout.OCR, "A_merged.pdf")) {
		t.Fatal("merged file not kept for resume")
	}

	run, err = e.newPipeline(t, 2).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c := run.Counts(); c.OK != 1 {
		t.Fatalf("second run counts = %s", c)
	}
	if e.merger.Calls() != 1 {
		t.Errorf("merger called %d times, want 1", e.merger.Calls())
	}
	if row := run.Rows()[0]; row.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 failed attempt on record", row.Attempts)
	}
}

func TestRunRestartsWhenPacketPagesChange(t *testing.T) {
	e := newEnv(t)
	e.ocr.failures = 1
	e.drop(t, "A-1-1.pdf", "A-1-2.pdf")

	run, err := e.newPipeline(t, 2).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c := run.Counts(); c.Error != 1 {
		t.Fatalf("first run counts = %s", c)
	}

	e.drop(t, "A-1-3.pdf")
	run, err = e.newPipeline(t, 2).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c := run.Counts(); c.OK != 1 {
		t.Fatalf("second run counts = %s", c)
	}
	if e.merger.Calls() != 2 {
		t.Errorf("merger called %d times, want 2", e.merger.Calls())
	}
	if got := strings.Join(e.merger.Inputs("A_merged.pdf"), ","); got != "A-1-1.pdf,A-1-2.pdf,A-1-3.pdf" {
		t.Errorf("merged inputs = %s", got)
	}

	led, err := ledger.Load(e.layout.LogFile())
	if err != nil {
		t.Fatal(err)
	}
	entries := led.Entries("A")
	if last := entries[len(entries)-1]; last.Message != "3 PDFs procesados" {
		t.Errorf("last entry = %+v", last)
	}
	if n := countEntries(entries, ledger.StageUnion, ledger.ResultOK); n != 2 {
		t.Errorf("%d UNION rows, want 2", n)
	}
}

func TestRunKeepsInputsWhenResultWriteFails(t *testing.T) {
	e := newEnv(t)
	e.drop(t, "A-1-1.pdf", "A-1-2.pdf")

	// A non-empty directory where the text report goes makes the final
	// rename fail after the JSON file is already in place.
	blocker := filepath.Join(e.layout.TXT, "A.txt")
	if err := os.MkdirAll(filepath.Join(blocker, "keep"), 0o755); err != nil {
		t.Fatal(err)
	}

	run, err := e.newPipeline(t, 2).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c := run.Counts(); c.Error != 1 {
		t.Fatalf("counts = %s", c)
	}
	if row := run.Rows()[0]; row.Stage != string(ledger.StageJSON) {
		t.Errorf("failed stage = %s, want %s", row.Stage, ledger.StageJSON)
	}

	for _, path := range []string{
		filepath.Join(e.layout.JSON, "A.json"),
		filepath.Join(e.layout.JSON, "A.json"+report.TmpSuffix),
		filepath.Join(e.layout.TXT, "A.txt"+report.TmpSuffix),
		filepath.Join(e.layout.Archive, "A.pdf"),
	} {
		if exists(path) {
			t.Errorf("%s written by a failed attempt", path)
		}
	}
	for _, path := range []string{
		filepath.Join(e.layout.Inbox, "A-1-1.pdf"),
		filepath.Join(e.layout.Inbox, "A-1-2.pdf"),
		filepath.Join(e.layout.OCR, "A_OCR.pdf"),
		filepath.Join(e.layout.OCR, "A_OCR.txt"),
	} {
		if !exists(path) {
			t.Errorf("%s removed by a failed attempt", path)
		}
	}
}

func TestRunResumesAnalysisFromPageTexts(t *testing.T) {
	e := newEnv(t)
	e.drop(t, "A-1-1.pdf")

	blocker := filepath.Join(e.layout.TXT, "A.txt")
	if err := os.MkdirAll(filepath.Join(blocker, "keep"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := e.newPipeline(t, 2).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(blocker); err != nil {
		t.Fatal(err)
	}

	// A second OCR pass would find nothing; the applicant can only come
	// from the saved page texts.
	e.ocr.pages = nil
	run, err := e.newPipeline(t, 2).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c := run.Counts(); c.OK != 1 {
		t.Fatalf("counts = %s", c)
	}
	if e.ocr.Calls() != 1 || e.merger.Calls() != 1 {
		t.Errorf("ocr calls = %d, merger calls = %d, want 1 each", e.ocr.Calls(), e.merger.Calls())
	}
	if row := run.Rows()[0]; row.Applicant != "Juan Pérez Rivera" {
		t.Errorf("row = %+v", row)
	}
	if !exists(filepath.Join(e.layout.JSON, "A.json")) {
		t.Error("results not written on resume")
	}
}

func TestRunResumesAtArchiveAfterResultsWritten(t *testing.T) {
	e := newEnv(t)
	e.archive = &flakyArchive{failures: 1, next: e.archive}
	e.drop(t, "A-1-1.pdf", "A-1-2.pdf")

	run, err := e.newPipeline(t, 2).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if row := run.Rows()[0]; row.Outcome != summary.OutcomeError || row.Stage != string(ledger.StageArchive) {
		t.Fatalf("first run row = %+v", row)
	}
	for _, path := range []string{
		filepath.Join(e.layout.JSON, "A.json"),
		filepath.Join(e.layout.Inbox, "A-1-1.pdf"),
		filepath.Join(e.layout.OCR, "A_OCR.pdf"),
	} {
		if !exists(path) {
			t.Errorf("%s missing after failed archive", path)
		}
	}

	run, err = e.newPipeline(t, 2).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c := run.Counts(); c.OK != 1 {
		t.Fatalf("second run counts = %s", c)
	}
	if e.ocr.Calls() != 1 || e.merger.Calls() != 1 {
		t.Errorf("ocr calls = %d, merger calls = %d, want 1 each", e.ocr.Calls(), e.merger.Calls())
	}
	if !exists(filepath.Join(e.layout.Archive, "A.pdf")) {
		t.Error("searchable PDF not archived")
	}
	if exists(filepath.Join(e.layout.Inbox, "A-1-1.pdf")) {
		t.Error("intake page left behind")
	}

	led, err := ledger.Load(e.layout.LogFile())
	if err != nil {
		t.Fatal(err)
	}
	if !led.Completed("A") {
		t.Error("packet not marked completed")
	}
	if n := countEntries(led.Entries("A"), ledger.StageArchive, ledger.ResultOK); n != 1 {
		t.Errorf("%d ARCHIVO rows, want 1", n)
	}
}

func TestRunProcessesEachPacketOnceWithWorkers(t *testing.T) {
	e := newEnv(t)
	ids := []string{"A", "B", "C", "D", "E"}
	for _, id := range ids {
		e.drop(t, id+"-1-1.pdf", id+"-1-2.pdf")
	}

	run, err := e.newPipeline(t, 2).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c := run.Counts(); c.OK != len(ids) || c.Total() != len(ids) {
		t.Fatalf("counts = %s", c)
	}
	if e.merger.Calls() != len(ids) {
		t.Errorf("merger called %d times, want %d", e.merger.Calls(), len(ids))
	}

	led, err := ledger.Load(e.layout.LogFile())
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range ids {
		if got := strings.Join(e.merger.Inputs(id+"_merged.pdf"), ","); got != id+"-1-1.pdf,"+id+"-1-2.pdf" {
			t.Errorf("%s merged inputs = %s", id, got)
		}
		if n := countEntries(led.Entries(id), ledger.StageComplete, ledger.ResultOK); n != 1 {
			t.Errorf("%s completed %d times", id, n)
		}
	}
}

func TestRunStopsSchedulingWhenCancelled(t *testing.T) {
	e := newEnv(t)
	e.drop(t, "A-1-1.pdf", "B-1-1.pdf")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := e.newPipeline(t, 2).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n := run.Counts().Total(); n != 0 {
		t.Errorf("%d packets processed after cancellation", n)
	}
	if !exists(filepath.Join(e.layout.Inbox, "A-1-1.pdf")) {
		t.Error("intake touched after cancellation")
	}
}

func TestNewRequiresServices(t *testing.T) {
	if _, err := pipeline.New(pipeline.Options{}); err == nil {
		t.Fatal("expected error for missing services")
	}
}

var _ summary.Sink = (*recordingSink)(nil)

type recordingSink struct {
	rows []summary.Row
}

func (s *recordingSink) Write(ctx context.Context, rows []summary.Row) error {
	s.rows = append(s.rows, rows...)
	return nil
}

func TestRunWritesSummaryToSink(t *testing.T) {
	e := newEnv(t)
	e.drop(t, "A-1-1.pdf")

	audit, err := ledger.Open(e.layout.LogFile())
	if err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}
	p, err := pipeline.New(pipeline.Options{
		Layout:   e.layout,
		OCR:      e.ocr,
		Merger:   e.merger,
		Analyzer: pipeline.NewAnalyzer(pipeline.AnalyzerOptions{}),
		Archive:  storage.NewLocalArchive(e.layout.Archive),
		Audit:    audit,
		Sink:     sink,
	})
	if err != nil {
		t.Fatal(err)
	}

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sink.rows) != 1 || sink.rows[0].RunID != run.ID {
		t.Errorf("sink rows = %+v", sink.rows)
	}
}
