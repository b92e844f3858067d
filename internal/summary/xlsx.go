package summary

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"pita/internal/logger"
)

// SheetName is the worksheet the XLSX summary appends to.
const SheetName = "Paquetes"

// XLSXSink appends run rows to a workbook on disk, creating it on first use.
type XLSXSink struct {
	path string
	log  zerolog.Logger
}

// NewXLSXSink writes to the workbook at path.
func NewXLSXSink(path string) *XLSXSink {
	return &XLSXSink{path: path, log: logger.WithComponent("summary-xlsx")}
}

// Write implements Sink.
func (s *XLSXSink) Write(ctx context.Context, rows []Row) error {
	const op = "XLSXSink.Write"

	if len(rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	f, err := s.open()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	existing, err := f.GetRows(SheetName)
	if err != nil {
		return fmt.Errorf("%s: failed to read rows: %w", op, err)
	}
	next := len(existing) + 1
	if len(existing) == 0 {
		for i, h := range Headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			_ = f.SetCellValue(SheetName, cell, h)
		}
		_ = f.SetColWidth(SheetName, "B", "B", 28)
		_ = f.SetColWidth(SheetName, "G", "G", 30)
		_ = f.SetColWidth(SheetName, "J", "J", 60)
		next = 2
	}

	for _, row := range rows {
		for i, v := range row.Values() {
			cell, _ := excelize.CoordinatesToCellName(i+1, next)
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return fmt.Errorf("%s: failed to set %s: %w", op, cell, err)
			}
		}
		next++
	}

	if err := f.SaveAs(s.path); err != nil {
		return fmt.Errorf("%s: failed to save %s: %w", op, s.path, err)
	}

	s.log.Info().Str("file", s.path).Int("rows", len(rows)).Msg("Run summary written")
	return nil
}

func (s *XLSXSink) open() (*excelize.File, error) {
	if _, err := os.Stat(s.path); err == nil {
		f, err := excelize.OpenFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
		}
		if idx, _ := f.GetSheetIndex(SheetName); idx == -1 {
			if _, err := f.NewSheet(SheetName); err != nil {
				f.Close()
				return nil, err
			}
		}
		return f, nil
	}

	f := excelize.NewFile()
	idx, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, err
	}
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")
	return f, nil
}
