package signature

import "errors"

var (
	// ErrIndeterminate is returned next to a Record with unknown presence.
	ErrIndeterminate = errors.New("signature presence indeterminate")

	// ErrNoImage is returned by an ImageSource for a page without an
	// extractable image.
	ErrNoImage = errors.New("no page image available")
)
