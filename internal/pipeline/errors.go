package pipeline

import (
	"errors"
	"fmt"

	"pita/internal/ledger"
)

// ErrIO marks file system failures of a stage. They are retried on the
// next run like OCR failures.
var ErrIO = errors.New("file system operation failed")

// StageError is the failure of one stage of one packet attempt.
type StageError struct {
	Packet string
	Stage  ledger.Stage
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Packet, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// wrapStage attaches the stage to err unless it already carries one.
func wrapStage(packet string, stage ledger.Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Packet: packet, Stage: stage, Err: err}
}

// ioErr marks err as a file system failure.
func ioErr(err error) error {
	if err == nil || errors.Is(err, ErrIO) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}
