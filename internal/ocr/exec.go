package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pita/internal/logger"
)

// ExecService runs ocrmypdf (or a command with the same flags) on the input
// PDF and reads the sidecar text it leaves next to the output.
type ExecService struct {
	command string
	runner  Runner
	log     zerolog.Logger
}

// NewExecService creates a service running command through os/exec.
func NewExecService(command string) *ExecService {
	log := logger.WithComponent("ocr-exec")
	return &ExecService{command: command, runner: NewExecRunner(log), log: log}
}

// NewExecServiceWithRunner creates a service with an explicit runner (for testing).
func NewExecServiceWithRunner(command string, runner Runner) *ExecService {
	return &ExecService{command: command, runner: runner, log: logger.WithComponent("ocr-exec")}
}

// Process implements Service.
func (s *ExecService) Process(ctx context.Context, req Request) (*Result, error) {
	const op = "Process"
	start := time.Now()

	if _, err := os.Stat(req.InputPath); err != nil {
		return nil, WrapOCRError(op, err, "input PDF not readable")
	}

	sidecar := req.OutputPath + ".sidecar.txt"
	defer os.Remove(sidecar)

	args := []string{
		"-l", req.languages(),
		"--skip-text",
		"--sidecar", sidecar,
		req.InputPath,
		req.OutputPath,
	}

	s.log.Info().
		Str("input", req.InputPath).
		Str("languages", req.languages()).
		Msg("Running OCR")

	_, stderr, err := s.runner.Run(ctx, s.command, args...)
	if err != nil {
		os.Remove(req.OutputPath)
		return nil, s.classify(ctx, op, err, stderr)
	}

	pages, err := ReadSidecar(sidecar)
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("sidecar text missing: %v", err))
	}
	if _, err := os.Stat(req.OutputPath); err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, "no output PDF produced")
	}

	done := time.Now()
	s.log.Info().
		Int("pages", len(pages)).
		Dur("duration", done.Sub(start)).
		Msg("OCR completed")

	return &Result{
		Pages:              pages,
		PageCount:          len(pages),
		LanguageCodes:      languageHints(req.languages()),
		ProcessedAt:        done,
		ProcessingDuration: done.Sub(start),
		Engine:             "ocrmypdf",
	}, nil
}

func (s *ExecService) classify(ctx context.Context, op string, err error, stderr []byte) error {
	detail := strings.TrimSpace(truncate(string(stderr), 200))
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return WrapOCRError(op, ErrTimeout, detail)
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return WrapOCRError(op, ErrUnavailable, fmt.Sprintf("%s not found", s.command))
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("exit code %d: %s", exitErr.ExitCode(), detail))
	}
	return WrapOCRError(op, err, detail)
}
