package packet

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FallbackPrefix starts the id of the packet that collects unmatched files.
const FallbackPrefix = "PAQUETE_"

var pagePattern = regexp.MustCompile(`(?i)^(.+)-([^-]+)-(\d+)\.pdf$`)

// GroupOptions carries the run-level inputs of grouping.
type GroupOptions struct {
	// RunStart names the fallback packet of this run.
	RunStart time.Time
	// Assigned maps unmatched file names to the fallback id an earlier run
	// persisted for them.
	Assigned map[string]string
}

// Grouping is the result of one grouping pass.
type Grouping struct {
	Packets   []*Packet
	Anomalies []*GroupingError
}

// FallbackID returns the id of the packet collecting unmatched files of a run.
func FallbackID(runStart time.Time) string {
	return FallbackPrefix + runStart.Format("20060102_150405")
}

// Discover lists the PDF files of an intake directory in natural order.
// A missing directory yields no files.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read intake directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), ".pdf") {
			continue
		}
		names = append(names, name)
	}

	sort.SliceStable(names, func(i, j int) bool {
		return naturalLess(names[i], names[j])
	})

	files := make([]string, len(names))
	for i, name := range names {
		files[i] = filepath.Join(dir, name)
	}
	return files, nil
}

// Group assigns every file to exactly one packet and fixes the page order of
// each packet. Zero files produce zero packets.
func Group(files []string, opts GroupOptions) *Grouping {
	g := &Grouping{}
	byID := make(map[string]*Packet)
	seen := make(map[string]map[string]string) // packet -> part/page -> file

	add := func(id string, fallback bool, page RawPage) {
		p, ok := byID[id]
		if !ok {
			p = &Packet{ID: id, Fallback: fallback, Status: StatusPending}
			byID[id] = p
			g.Packets = append(g.Packets, p)
		}
		p.Pages = append(p.Pages, page)
	}

	fallbackID := FallbackID(opts.RunStart)

	for i, path := range files {
		name := filepath.Base(path)
		page := RawPage{
			Path:  path,
			Name:  name,
			Tag:   ParseTag(name),
			Index: i,
		}

		if info, err := os.Stat(path); err == nil && info.Size() == 0 {
			g.Anomalies = append(g.Anomalies, &GroupingError{File: name, Err: ErrEmptyFile})
		}

		if m := pagePattern.FindStringSubmatch(name); m != nil {
			id := Sanitize(m[1])
			if id == "" {
				g.Anomalies = append(g.Anomalies, &GroupingError{File: name, Err: ErrUnnamed})
			} else {
				page.Base = m[1]
				page.Part = m[2]
				page.Page, _ = strconv.Atoi(m[3])

				key := strings.ToUpper(page.Part) + "/" + strconv.Itoa(page.Page)
				if seen[id] == nil {
					seen[id] = make(map[string]string)
				}
				if other, dup := seen[id][key]; dup {
					g.Anomalies = append(g.Anomalies, &GroupingError{
						File:   name,
						Packet: id,
						Err:    fmt.Errorf("%w: %s also used by %s", ErrDuplicatePage, key, other),
					})
				} else {
					seen[id][key] = name
				}

				add(id, false, page)
				continue
			}
		}

		id := fallbackID
		if assigned, ok := opts.Assigned[name]; ok && assigned != "" {
			id = assigned
		}
		add(id, true, page)
	}

	for _, p := range g.Packets {
		sort.SliceStable(p.Pages, func(i, j int) bool {
			ri, ii := p.Pages[i].OrderKey()
			rj, ij := p.Pages[j].OrderKey()
			if ri != rj {
				return ri < rj
			}
			return ii < ij
		})
	}

	return g
}

// naturalLess compares digit runs numerically and everything else
// case-insensitively.
func naturalLess(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	for a != "" && b != "" {
		da, db := isDigit(a[0]), isDigit(b[0])
		switch {
		case da && db:
			na, ra := leadingDigits(a)
			nb, rb := leadingDigits(b)
			ta, tb := strings.TrimLeft(na, "0"), strings.TrimLeft(nb, "0")
			if len(ta) != len(tb) {
				return len(ta) < len(tb)
			}
			if ta != tb {
				return ta < tb
			}
			a, b = ra, rb
		case a[0] != b[0]:
			return a[0] < b[0]
		default:
			a, b = a[1:], b[1:]
		}
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func leadingDigits(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}
