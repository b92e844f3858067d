package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Normalizer turns a raw match into the stored value. ok=false drops the field.
type Normalizer func(raw string) (value string, ok bool)

var (
	emailPattern = regexp.MustCompile(`(?i)([\w.\-]+@[\w.\-]+\.[a-z]{2,})`)
	whitespace   = regexp.MustCompile(`\s+`)
)

var amountPrinter = message.NewPrinter(language.English)

// Clean collapses whitespace and trims.
func Clean(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func keep(raw string) (string, bool) {
	return raw, raw != ""
}

// Currency formats amounts above 1000 as $1,234.56. Smaller numbers are
// OCR noise and are dropped.
func Currency(raw string) (string, bool) {
	digits := strings.NewReplacer(",", "", " ", "").Replace(raw)
	n, err := strconv.ParseFloat(digits, 64)
	if err != nil || n <= 1000 {
		return "", false
	}
	return amountPrinter.Sprintf("$%.2f", n), true
}

// Email strips OCR artifacts and lower-cases the address.
func Email(raw string) (string, bool) {
	s := strings.ReplaceAll(raw, "|", "")
	s = whitespace.ReplaceAllString(s, "")
	if m := emailPattern.FindStringSubmatch(s); m != nil {
		return strings.ToLower(m[1]), true
	}
	if strings.Contains(s, "@") {
		return strings.ToLower(s), true
	}
	return "", false
}

// Finca trims trailing commas of a property number.
func Finca(raw string) (string, bool) {
	return keep(strings.TrimSpace(strings.TrimRight(raw, ",")))
}

// Date rewrites a d/m/yyyy date as zero-padded dd/mm/yyyy. Impossible
// dates are dropped.
func Date(raw string) (string, bool) {
	t, err := time.Parse("2/1/2006", strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return t.Format("02/01/2006"), true
}
