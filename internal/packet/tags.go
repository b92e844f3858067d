package packet

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// TagKind is the document role a filename announces.
type TagKind int

const (
	TagNone TagKind = iota
	TagCV
	TagET
	TagPage
	TagDIV
)

// untaggedRank places untagged pages after every tagged one.
const untaggedRank = 1 << 20

// Tag is the precedence marker read from a filename.
type Tag struct {
	Kind   TagKind
	N      int  // DIV(n) index, 0 for a bare DIV
	Strong bool // read from an exact token rather than a synonym
}

// Rank follows the precedence table CV, ET, Page, DIV, DIV(1), DIV(2), ...
func (t Tag) Rank() int {
	switch t.Kind {
	case TagCV:
		return 1
	case TagET:
		return 2
	case TagPage:
		return 3
	case TagDIV:
		return 4 + t.N
	default:
		return untaggedRank
	}
}

func (t Tag) String() string {
	switch t.Kind {
	case TagCV:
		return "CV"
	case TagET:
		return "ET"
	case TagPage:
		return "Page"
	case TagDIV:
		if t.N > 0 {
			return fmt.Sprintf("DIV(%d)", t.N)
		}
		return "DIV"
	default:
		return ""
	}
}

var (
	divIndexed = regexp.MustCompile(`(?i)\bDIV\s*\(\s*(\d+)\s*\)`)
	tokenSplit = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

var strongTokens = map[string]TagKind{
	"CV":   TagCV,
	"ET":   TagET,
	"PAGE": TagPage,
	"PAG":  TagPage,
	"DIV":  TagDIV,
}

var weakTokens = map[string]TagKind{
	"CARTA":        TagCV,
	"COTIZACION":   TagCV,
	"ESTUDIO":      TagET,
	"CONTINUACION": TagPage,
}

// ParseTag reads the precedence tag from a file name. Exact tokens win over
// synonyms, so "COTIZACION 1911 DIV (1).pdf" is DIV(1).
func ParseTag(name string) Tag {
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	if m := divIndexed.FindStringSubmatch(stem); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return Tag{Kind: TagDIV, N: n, Strong: true}
		}
	}

	weak := Tag{}
	for _, tok := range tokenSplit.Split(strings.ToUpper(stem), -1) {
		if kind, ok := strongTokens[tok]; ok {
			return Tag{Kind: kind, Strong: true}
		}
		if kind, ok := weakTokens[tok]; ok && weak.Kind == TagNone {
			weak = Tag{Kind: kind}
		}
	}
	return weak
}
