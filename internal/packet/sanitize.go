package packet

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	unsafeChars = regexp.MustCompile(`[^\w\-]`)
	underscores = regexp.MustCompile(`_+`)
)

// Sanitize turns a file name into an identifier safe for output names:
// 'COTIZACION 1911 CV (2).pdf' becomes COTIZACION_1911_CV_2.
func Sanitize(name string) string {
	if ext := filepath.Ext(name); strings.EqualFold(ext, ".pdf") {
		name = strings.TrimSuffix(name, ext)
	}
	name = unsafeChars.ReplaceAllString(name, "_")
	name = underscores.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}
