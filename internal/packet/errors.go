package packet

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicatePage = errors.New("duplicate part/page key")
	ErrEmptyFile     = errors.New("empty file")
	ErrUnnamed       = errors.New("file name sanitizes to nothing")
)

// GroupingError is a metadata anomaly found while grouping. It never aborts
// grouping; the affected file is still assigned to a packet when possible.
type GroupingError struct {
	File   string
	Packet string
	Err    error
}

func (e *GroupingError) Error() string {
	if e.Packet != "" {
		return fmt.Sprintf("grouping %s (packet %s): %v", e.File, e.Packet, e.Err)
	}
	return fmt.Sprintf("grouping %s: %v", e.File, e.Err)
}

func (e *GroupingError) Unwrap() error {
	return e.Err
}
