package dashboard

import (
	"slices"
	"strconv"
	"strings"

	"github.com/livedash/host/internal/protocol"
)

// Plot is one panel of a client's dashboard.
type Plot struct {
	ID      string
	Options protocol.PlotOptions

	lines map[string]*Line
}

// newPlot returns a plot seeded with the default line.
func newPlot(id string) *Plot {
	p := &Plot{ID: id, lines: make(map[string]*Line)}
	p.lines[protocol.DefaultLineID] = newLine(protocol.DefaultLineID)
	return p
}

// Line returns the named line.
func (p *Plot) Line(id string) (*Line, bool) {
	l, ok := p.lines[id]
	return l, ok
}

func (p *Plot) ensureLine(id string) (*Line, bool) {
	if l, ok := p.lines[id]; ok {
		return l, false
	}
	l := newLine(id)
	p.lines[id] = l
	return l, true
}

// LineIDs returns the plot's line ids in display order.
func (p *Plot) LineIDs() []string {
	return sortedIDs(p.lines)
}

// CompareIDs orders identifiers numerically when both parse as numbers and
// lexicographically otherwise. Numeric ids sort before non-numeric ones.
func CompareIDs(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil:
		if fa < fb {
			return -1
		}
		if fa > fb {
			return 1
		}
		return strings.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, CompareIDs)
	return ids
}
