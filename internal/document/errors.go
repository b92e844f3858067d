package document

import "errors"

// ErrClassificationAmbiguous marks a page that matched no document type.
// The page is kept as UNKNOWN.
var ErrClassificationAmbiguous = errors.New("page matches no document type")
