package summary_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"pita/internal/summary"
)

func TestRunCounts(t *testing.T) {
	run := summary.NewRun("run-1", time.Now())
	outcomes := []summary.Outcome{
		summary.OutcomeOK, summary.OutcomeOK, summary.OutcomeError,
		summary.OutcomeIgnored, summary.OutcomeLimit,
	}
	var wg sync.WaitGroup
	for i, o := range outcomes {
		wg.Add(1)
		go func(i int, o summary.Outcome) {
			defer wg.Done()
			run.Add(summary.Row{Packet: fmt.Sprintf("P%d", i), Outcome: o})
		}(i, o)
	}
	wg.Wait()

	c := run.Counts()
	if c.OK != 2 || c.Error != 1 || c.Ignored != 1 || c.Limit != 1 || c.Total() != 5 {
		t.Errorf("counts = %+v", c)
	}
	for _, r := range run.Rows() {
		if r.RunID != "run-1" {
			t.Errorf("row without run id: %+v", r)
		}
	}
}

func TestXLSXSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resumen.xlsx")
	sink := summary.NewXLSXSink(path)
	ctx := context.Background()

	first := []summary.Row{{RunID: "r1", Packet: "A", Outcome: summary.OutcomeOK, Status: "APROBADO", Pages: 4}}
	second := []summary.Row{
		{RunID: "r2", Packet: "B", Outcome: summary.OutcomeError, Stage: "OCR", Message: "timeout"},
		{RunID: "r2", Packet: "C", Outcome: summary.OutcomeIgnored},
	}
	if err := sink.Write(ctx, first); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := sink.Write(ctx, second); err != nil {
		t.Fatalf("second write: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows(summary.SheetName)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	if rows[0][1] != "Paquete" || rows[1][1] != "A" || rows[3][1] != "C" {
		t.Errorf("rows = %v", rows)
	}
	if rows[2][8] != "OCR" {
		t.Errorf("stage column = %q", rows[2][8])
	}
}

type failingSink struct{}

func (failingSink) Write(context.Context, []summary.Row) error { return errors.New("offline") }

func TestMultiSinkJoinsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resumen.xlsx")
	sinks := summary.MultiSink{failingSink{}, summary.NewXLSXSink(path)}
	err := sinks.Write(context.Background(), []summary.Row{{Packet: "A", Outcome: summary.OutcomeOK}})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, statErr := excelize.OpenFile(path); statErr != nil {
		t.Errorf("second sink skipped: %v", statErr)
	}
}

func ExampleCounts() {
	fmt.Println(summary.Counts{OK: 3, Error: 1})
	// Output: OK=3 ERROR=1 IGNORADO=0 LIMITE_ERRORES=0
}
