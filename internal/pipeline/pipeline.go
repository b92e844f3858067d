// Package pipeline drives packets from the intake folder to validated
// results: grouping, merge, OCR, analysis, result writing and archiving,
// with retry state kept in the audit log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pita/internal/config"
	"pita/internal/ledger"
	"pita/internal/logger"
	"pita/internal/ocr"
	"pita/internal/packet"
	"pita/internal/pdf"
	"pita/internal/report"
	"pita/internal/storage"
	"pita/internal/summary"
)

// Options wire a Pipeline. OCR, Merger, Analyzer, Archive and Audit are
// required.
type Options struct {
	Layout    config.Layout
	MaxErrors int
	MaxTmpAge time.Duration
	Workers   int
	Languages string

	OCR      ocr.Service
	Merger   pdf.Merger
	Analyzer *Analyzer
	Archive  storage.Archive
	Audit    *ledger.AuditLog
	Sink     summary.Sink

	Clock func() time.Time
}

// Pipeline processes every packet found in the intake folder.
type Pipeline struct {
	layout    config.Layout
	maxErrors int
	maxTmpAge time.Duration
	workers   int
	languages string

	ocr      ocr.Service
	merger   pdf.Merger
	analyzer *Analyzer
	archive  storage.Archive
	audit    *ledger.AuditLog
	sink     summary.Sink
	now      func() time.Time

	active sync.Map // packet id -> struct{}
	log    zerolog.Logger
}

// New validates opts and creates a Pipeline.
func New(opts Options) (*Pipeline, error) {
	const op = "New"

	switch {
	case opts.OCR == nil:
		return nil, fmt.Errorf("%s: OCR service is required", op)
	case opts.Merger == nil:
		return nil, fmt.Errorf("%s: merger is required", op)
	case opts.Analyzer == nil:
		return nil, fmt.Errorf("%s: analyzer is required", op)
	case opts.Archive == nil:
		return nil, fmt.Errorf("%s: archive is required", op)
	case opts.Audit == nil:
		return nil, fmt.Errorf("%s: audit log is required", op)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Pipeline{
		layout:    opts.Layout,
		maxErrors: opts.MaxErrors,
		maxTmpAge: opts.MaxTmpAge,
		workers:   opts.Workers,
		languages: opts.Languages,
		ocr:       opts.OCR,
		merger:    opts.Merger,
		analyzer:  opts.Analyzer,
		archive:   opts.Archive,
		audit:     opts.Audit,
		sink:      opts.Sink,
		now:       opts.Clock,
		log:       logger.WithComponent("pipeline"),
	}, nil
}

// Run processes the current intake once. Cancelling ctx stops scheduling
// new packets; packets already started run to the end of their attempt.
func (p *Pipeline) Run(ctx context.Context) (*summary.Run, error) {
	const op = "Run"

	run := summary.NewRun(uuid.NewString(), p.now())
	log := p.log.With().Str("run_id", run.ID).Logger()

	for _, dir := range p.layout.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return run, fmt.Errorf("%s: %w", op, ioErr(err))
		}
	}

	removed, err := report.CleanOrphans(run.StartedAt, p.maxTmpAge, p.layout.JSON, p.layout.TXT, p.layout.OCR)
	for _, path := range removed {
		log.Info().Str("file", path).Msg("Removed orphan temporary file")
	}
	if err != nil {
		log.Warn().Err(err).Msg("Orphan cleanup incomplete")
	}

	packets, err := p.Candidates(run.StartedAt)
	if err != nil {
		return run, fmt.Errorf("%s: %w", op, err)
	}

	log.Info().
		Int("packets", len(packets)).
		Int("workers", p.workers).
		Msg("Run started")

	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	for _, pk := range packets {
		if ctx.Err() != nil {
			log.Warn().Str("packet", pk.ID).Msg("Run cancelled, packet left for the next run")
			break
		}
		pk := pk
		g.Go(func() error {
			p.process(context.WithoutCancel(ctx), run, pk)
			return nil
		})
	}
	_ = g.Wait()

	run.FinishedAt = p.now()
	counts := run.Counts()
	log.Info().
		Int("ok", counts.OK).
		Int("error", counts.Error).
		Int("ignored", counts.Ignored).
		Int("limit", counts.Limit).
		Dur("duration", run.FinishedAt.Sub(run.StartedAt)).
		Msg("Run finished")

	if p.sink != nil {
		if err := p.sink.Write(context.WithoutCancel(ctx), run.Rows()); err != nil {
			log.Warn().Err(err).Msg("Run summary export failed")
		}
	}
	return run, ctx.Err()
}

// Candidates groups the intake files into packets, honoring fallback ids
// persisted by earlier runs.
func (p *Pipeline) Candidates(runStart time.Time) ([]*packet.Packet, error) {
	files, err := packet.Discover(p.layout.Inbox)
	if err != nil {
		return nil, ioErr(err)
	}
	manifests, err := ledger.LoadManifests(p.layout.OCR)
	if err != nil {
		p.log.Warn().Err(err).Msg("Manifests unreadable, fallback packets get a new id")
	}

	grouping := packet.Group(files, packet.GroupOptions{
		RunStart: runStart,
		Assigned: ledger.FallbackAssignments(manifests),
	})
	for _, anomaly := range grouping.Anomalies {
		p.log.Warn().Err(anomaly).Str("file", anomaly.File).Msg("Intake anomaly")
	}

	led := p.audit.Ledger()
	for _, pk := range grouping.Packets {
		pk.Attempts = led.Attempts(pk.ID)
	}
	return grouping.Packets, nil
}

// artifacts are the files one packet attempt reads and writes.
type artifacts struct {
	merged   string
	ocrPDF   string
	sidecar  string
	json     string
	text     string
	archived string // name inside the archive
}

func (p *Pipeline) artifacts(id string) artifacts {
	return artifacts{
		merged:   filepath.Join(p.layout.OCR, id+"_merged.pdf"),
		ocrPDF:   filepath.Join(p.layout.OCR, id+"_OCR.pdf"),
		sidecar:  filepath.Join(p.layout.OCR, id+"_OCR.txt"),
		json:     filepath.Join(p.layout.JSON, id+".json"),
		text:     filepath.Join(p.layout.TXT, id+".txt"),
		archived: id + ".pdf",
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// resumeStage starts from the last failed stage and steps back while the
// artifacts that stage needs are missing. Analysis results live only in
// memory, so a failed JSON stage repeats the analysis.
func (p *Pipeline) resumeStage(id string, a artifacts) ledger.Stage {
	led := p.audit.Ledger()
	stage := led.ResumeStage(id)
	if exists(a.json) && exists(a.text) && !led.Completed(id) {
		stage = ledger.StageArchive
	}

	for {
		switch stage {
		case ledger.StageArchive:
			if exists(a.json) && exists(a.text) {
				return stage
			}
			stage = ledger.StageAnalysis
		case ledger.StageJSON:
			stage = ledger.StageAnalysis
		case ledger.StageAnalysis:
			if exists(a.ocrPDF) && exists(a.sidecar) {
				return stage
			}
			stage = ledger.StageOCR
		case ledger.StageOCR:
			if exists(a.merged) {
				return stage
			}
			stage = ledger.StageUnion
		default:
			return ledger.StageUnion
		}
	}
}

// discardIfRegrouped removes the intermediate artifacts of an earlier
// attempt that ran over a different page set, so the packet restarts at
// UNION with its current pages.
func (p *Pipeline) discardIfRegrouped(log zerolog.Logger, pk *packet.Packet, files artifacts) {
	prev, err := ledger.ReadManifest(p.layout.OCR, pk.ID)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return
	case err != nil:
		log.Warn().Err(err).Msg("Manifest unreadable, restarting from merge")
	case slices.Equal(prev.Files, pk.Names()):
		return
	default:
		log.Warn().
			Strs("previous", prev.Files).
			Strs("current", pk.Names()).
			Msg("Packet pages changed since last attempt, restarting from merge")
	}
	p.discard(log, files)
}

func (p *Pipeline) discard(log zerolog.Logger, files artifacts) {
	for _, path := range []string{files.merged, files.ocrPDF, files.sidecar, files.json, files.text} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", path).Msg("Failed to delete stale artifact")
		}
	}
}

// attempt carries state between the stages of one attempt.
type attempt struct {
	pk     *packet.Packet
	num    int
	files  artifacts
	pages  []string
	report *report.Report
	log    zerolog.Logger
}

func (p *Pipeline) process(ctx context.Context, run *summary.Run, pk *packet.Packet) {
	if _, busy := p.active.LoadOrStore(pk.ID, struct{}{}); busy {
		p.log.Warn().Str("packet", pk.ID).Msg("Packet already in progress, skipping")
		return
	}
	defer p.active.Delete(pk.ID)

	log := logger.WithPacket(p.log, run.ID, pk.ID)
	led := p.audit.Ledger()
	files := p.artifacts(pk.ID)
	row := summary.Row{Packet: pk.ID, Attempts: led.Attempts(pk.ID), ProcessedAt: p.now()}

	if exists(files.json) && led.Completed(pk.ID) {
		log.Info().Msg("Results already exist, ignoring packet")
		p.record(log, ledger.Entry{Packet: pk.ID, Stage: ledger.StageComplete, Result: ledger.ResultIgnored, Message: "JSON ya existe"})
		row.Outcome = summary.OutcomeIgnored
		run.Add(row)
		return
	}

	if n := led.Attempts(pk.ID); n > p.maxErrors {
		p.moveToError(log, pk, files, n)
		row.Outcome = summary.OutcomeLimit
		run.Add(row)
		return
	}

	pk.Status = packet.StatusInProgress
	at := &attempt{pk: pk, num: led.Attempts(pk.ID) + 1, files: files, log: log}

	p.discardIfRegrouped(log, pk, files)
	if err := ledger.WriteManifest(p.layout.OCR, ledger.Manifest{
		ID:        pk.ID,
		Files:     pk.Names(),
		Fallback:  pk.Fallback,
		CreatedAt: run.StartedAt,
	}); err != nil {
		p.fail(log, run, at, &row, wrapStage(pk.ID, ledger.StageUnion, ioErr(err)))
		return
	}

	resume := p.resumeStage(pk.ID, files)
	log.Info().
		Int("pages", len(pk.Pages)).
		Int("attempt", at.num).
		Str("resume", string(resume)).
		Msg("Processing packet")

	for _, st := range p.stages() {
		if st.stage.Index() < resume.Index() {
			continue
		}
		msg, err := st.run(ctx, at)
		if err != nil {
			p.fail(log, run, at, &row, wrapStage(pk.ID, st.stage, err))
			return
		}
		p.record(log, ledger.Entry{Packet: pk.ID, Stage: st.stage, Result: ledger.ResultOK, Message: msg, Attempt: at.num})
	}

	p.record(log, ledger.Entry{
		Packet:  pk.ID,
		Stage:   ledger.StageComplete,
		Result:  ledger.ResultOK,
		Message: fmt.Sprintf("%d PDFs procesados", len(pk.Pages)),
		Attempt: at.num,
	})
	pk.Status = packet.StatusDone

	row.Outcome = summary.OutcomeOK
	if at.report != nil {
		fillRow(&row, at.report)
	}
	run.Add(row)
	log.Info().Str("status", row.Status).Msg("Packet completed")
}

// fail records a failed attempt and moves the packet out once it has used
// up its retries.
func (p *Pipeline) fail(log zerolog.Logger, run *summary.Run, at *attempt, row *summary.Row, err error) {
	var se *StageError
	stage := ledger.StageUnion
	if errors.As(err, &se) {
		stage = se.Stage
	}
	log.Error().Err(err).Str("stage", string(stage)).Int("attempt", at.num).Msg("Packet attempt failed")

	p.record(log, ledger.Entry{Packet: at.pk.ID, Stage: stage, Result: ledger.ResultError, Message: errMessage(err), Attempt: at.num})

	row.Stage = string(stage)
	row.Message = ledger.SanitizeMessage(errMessage(err))
	row.Attempts = at.num

	if n := p.audit.Ledger().Attempts(at.pk.ID); n > p.maxErrors {
		p.moveToError(log, at.pk, at.files, n)
		row.Outcome = summary.OutcomeLimit
	} else {
		at.pk.Status = packet.StatusPending
		row.Outcome = summary.OutcomeError
	}
	run.Add(*row)
}

// errMessage drops the packet prefix StageError adds; the log row already
// names packet and stage.
func errMessage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Err.Error()
	}
	return err.Error()
}

// moveToError renames the raw pages into the error folder and clears the
// packet's temporary artifacts.
func (p *Pipeline) moveToError(log zerolog.Logger, pk *packet.Packet, files artifacts, errCount int) {
	log.Warn().Int("errors", errCount).Msg("Error limit reached, moving packet to error folder")

	moved := true
	for _, page := range pk.Pages {
		dst := filepath.Join(p.layout.Error, page.Name)
		if err := os.Rename(page.Path, dst); err != nil {
			log.Error().Err(err).Str("file", page.Name).Msg("Failed to move page to error folder")
			moved = false
		}
	}
	if !moved {
		return
	}
	for _, path := range []string{files.merged, files.ocrPDF, files.sidecar} {
		os.Remove(path)
	}
	if err := ledger.RemoveManifest(p.layout.OCR, pk.ID); err != nil {
		log.Warn().Err(err).Msg("Failed to remove manifest")
	}

	pk.Status = packet.StatusError
	p.record(log, ledger.Entry{
		Packet:  pk.ID,
		Stage:   ledger.StageMoved,
		Result:  ledger.ResultLimit,
		Message: fmt.Sprintf("%d errores", errCount),
	})
}

func (p *Pipeline) record(log zerolog.Logger, e ledger.Entry) {
	if err := p.audit.Append(e); err != nil {
		log.Error().Err(err).Str("stage", string(e.Stage)).Msg("Failed to write audit log")
	}
}

func fillRow(row *summary.Row, r *report.Report) {
	row.Status = string(r.ResumenValidacion)
	row.Pages = r.TotalPaginas
	row.Alerts = len(r.Alertas)
	for _, t := range r.DocumentTypes() {
		fields := r.DocumentosDetectados[t].Datos.Fields
		if row.Applicant == "" {
			row.Applicant = fields["nombre_solicitante"]
		}
		if row.Number == "" {
			row.Number = fields["num_solicitud"]
		}
	}
}
