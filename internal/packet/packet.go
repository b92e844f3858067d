// Package packet discovers raw intake pages and groups them into ordered
// submission packets.
package packet

import "fmt"

// Status of a packet within one run.
type Status int

const (
	StatusPending Status = iota
	StatusInProgress
	StatusDone
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "InProgress"
	case StatusDone:
		return "Done"
	case StatusError:
		return "Error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// RawPage is one intake file. It is not modified after discovery.
type RawPage struct {
	Path  string // source file path
	Name  string // file name
	Base  string // inferred base name, empty for unmatched files
	Part  string
	Page  int
	Tag   Tag
	Index int // discovery position
}

// OrderKey sorts tagged pages by precedence, then by discovery.
func (p RawPage) OrderKey() (int, int) {
	return p.Tag.Rank(), p.Index
}

// Packet is the unit of processing: one loan-quote submission.
type Packet struct {
	ID       string
	Pages    []RawPage
	Fallback bool
	Attempts int
	Status   Status
}

// Paths returns the source paths in packet order.
func (p *Packet) Paths() []string {
	paths := make([]string, len(p.Pages))
	for i, page := range p.Pages {
		paths[i] = page.Path
	}
	return paths
}

// Names returns the source file names in packet order.
func (p *Packet) Names() []string {
	names := make([]string, len(p.Pages))
	for i, page := range p.Pages {
		names[i] = page.Name
	}
	return names
}
