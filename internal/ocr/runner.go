package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Runner lets tests stub external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	log zerolog.Logger
}

// NewExecRunner creates an ExecRunner logging through log.
func NewExecRunner(log zerolog.Logger) ExecRunner {
	return ExecRunner{log: log}
}

// Run executes name with args and captures both streams.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	r.log.Debug().Str("cmd_line", strings.Join(append([]string{name}, args...), " ")).Msg("Running command")

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		r.log.Error().
			Err(err).
			Str("cmd", name).
			Int64("duration_ms", dur.Milliseconds()).
			Str("stderr", truncate(errb.String(), 8<<10)).
			Msg("Command failed")
	} else {
		r.log.Debug().
			Str("cmd", name).
			Int64("duration_ms", dur.Milliseconds()).
			Int("stdout_bytes", out.Len()).
			Msg("Command finished")
	}

	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
