package dashboard

import (
	"slices"

	"github.com/livedash/host/internal/protocol"
)

// Shape is the layout of a line's data buffer.
type Shape uint8

const (
	// ShapeEmpty means no data has been received since creation or the
	// last replace.
	ShapeEmpty Shape = iota
	// ShapePaired holds explicit x and y sequences.
	ShapePaired
	// ShapeIndexed holds samples plotted against their position.
	ShapeIndexed
)

func (s Shape) String() string {
	switch s {
	case ShapePaired:
		return "paired"
	case ShapeIndexed:
		return "indexed"
	default:
		return "empty"
	}
}

// Line is one named series within a plot.
type Line struct {
	ID      string
	Options protocol.LineOptions

	shape   Shape
	x, y    []float64
	samples []protocol.Sample
}

func newLine(id string) *Line {
	return &Line{ID: id}
}

// Shape returns the current buffer shape.
func (l *Line) Shape() Shape { return l.shape }

// Len returns the number of plottable points.
func (l *Line) Len() int {
	switch l.shape {
	case ShapePaired:
		return min(len(l.x), len(l.y))
	case ShapeIndexed:
		return len(l.samples)
	default:
		return 0
	}
}

// Apply merges a classified payload into the buffer. A replace clears the
// buffer first. A series always overwrites x and y; samples accumulate on
// the indexed buffer. It reports whether data of the other shape was
// discarded as a result.
func (l *Line) Apply(p protocol.Payload, mode protocol.Mode) (shapeChanged bool) {
	if mode == protocol.ModeReplace {
		l.clear()
	}

	switch p.Kind {
	case protocol.PayloadSeries:
		shapeChanged = l.shape == ShapeIndexed
		l.samples = nil
		l.x = slices.Clone(p.X)
		l.y = slices.Clone(p.Y)
		l.shape = ShapePaired

	case protocol.PayloadSample, protocol.PayloadBatch:
		if l.shape == ShapePaired {
			shapeChanged = true
			l.x, l.y = nil, nil
		}
		for _, s := range p.Samples {
			l.samples = append(l.samples, slices.Clone(s))
		}
		l.shape = ShapeIndexed
	}
	return shapeChanged
}

func (l *Line) clear() {
	l.shape = ShapeEmpty
	l.x, l.y = nil, nil
	l.samples = nil
}

// XY resolves the buffer to plottable coordinates. Paired data is
// truncated to the shorter sequence. Indexed data plots each sample's
// first two values as (x, y) when every sample has at least two, and
// otherwise plots the first value against the sample index.
func (l *Line) XY() (xs, ys []float64) {
	switch l.shape {
	case ShapePaired:
		n := min(len(l.x), len(l.y))
		return slices.Clone(l.x[:n]), slices.Clone(l.y[:n])

	case ShapeIndexed:
		n := len(l.samples)
		xs = make([]float64, n)
		ys = make([]float64, n)
		pairs := n > 0
		for _, s := range l.samples {
			if len(s) < 2 {
				pairs = false
				break
			}
		}
		for i, s := range l.samples {
			if pairs {
				xs[i], ys[i] = s[0], s[1]
			} else {
				xs[i], ys[i] = float64(i), s[0]
			}
		}
		return xs, ys
	}
	return nil, nil
}
