// Package dashboard holds the per-client plot state the render loop
// mutates and draws: windows of plots of lines.
package dashboard

import (
	"sync"

	"github.com/livedash/host/internal/protocol"
)

// Result describes what applying one command did.
type Result struct {
	// Applied is false when the command addressed a plot or line that does
	// not exist and was therefore ignored.
	Applied bool

	// ShapeChanged reports that an update discarded data of the other
	// shape (paired vs indexed) without an explicit replace.
	ShapeChanged bool
}

// Window is the dashboard state of one client.
type Window struct {
	ClientID uint64

	mu      sync.Mutex
	plots   map[string]*Plot
	version uint64
}

// NewWindow creates an empty window.
func NewWindow(clientID uint64) *Window {
	return &Window{ClientID: clientID, plots: make(map[string]*Plot)}
}

// Version increases on every state change. The render loop compares it
// against the version it last flushed to skip unchanged windows.
func (w *Window) Version() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.version
}

// NumPlots returns the number of plots.
func (w *Window) NumPlots() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.plots)
}

// Plot returns the named plot. The returned pointer must not be used
// concurrently with Apply.
func (w *Window) Plot(id string) (*Plot, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.plots[id]
	return p, ok
}

// Apply mutates the window according to cmd.
func (w *Window) Apply(cmd protocol.Command) Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	var res Result
	switch cmd.Action {
	case protocol.ActionCreatePlot:
		p, _ := w.ensurePlot(cmd.PlotID)
		p.Options.Merge(cmd.PlotOptions)
		res.Applied = true

	case protocol.ActionUpdatePlot, protocol.ActionUpdateLine:
		lineID := cmd.LineID
		if cmd.Action == protocol.ActionUpdatePlot || lineID == "" {
			lineID = protocol.DefaultLineID
		}
		p, _ := w.ensurePlot(cmd.PlotID)
		l, _ := p.ensureLine(lineID)
		res.ShapeChanged = l.Apply(cmd.Payload, cmd.Mode)
		res.Applied = true

	case protocol.ActionConfigPlot:
		if p, ok := w.plots[cmd.PlotID]; ok {
			p.Options.Merge(cmd.PlotOptions)
			res.Applied = true
		}

	case protocol.ActionRemovePlot:
		if _, ok := w.plots[cmd.PlotID]; ok {
			delete(w.plots, cmd.PlotID)
			res.Applied = true
		}

	case protocol.ActionCreateLine:
		p, _ := w.ensurePlot(cmd.PlotID)
		l, _ := p.ensureLine(cmd.LineID)
		l.Options.Merge(cmd.LineOptions)
		res.Applied = true

	case protocol.ActionConfigLine:
		if p, ok := w.plots[cmd.PlotID]; ok {
			if l, ok := p.lines[cmd.LineID]; ok {
				l.Options.Merge(cmd.LineOptions)
				res.Applied = true
			}
		}

	case protocol.ActionRemoveLine:
		if p, ok := w.plots[cmd.PlotID]; ok {
			if _, ok := p.lines[cmd.LineID]; ok {
				delete(p.lines, cmd.LineID)
				res.Applied = true
			}
		}
	}

	if res.Applied {
		w.version++
	}
	return res
}

func (w *Window) ensurePlot(id string) (*Plot, bool) {
	if p, ok := w.plots[id]; ok {
		return p, false
	}
	p := newPlot(id)
	w.plots[id] = p
	return p, true
}

// Snapshot is an immutable copy of a window for drawing.
type Snapshot struct {
	ClientID uint64
	Version  uint64
	Plots    []PlotSnapshot
}

// PlotSnapshot is a copy of one plot, lines in display order.
type PlotSnapshot struct {
	ID      string
	Options protocol.PlotOptions
	Lines   []LineSnapshot
}

// LineSnapshot is a copy of one line with its data resolved to x/y.
type LineSnapshot struct {
	ID      string
	Options protocol.LineOptions
	Shape   Shape
	X, Y    []float64
}

// HasData reports whether any line of the plot has points.
func (p PlotSnapshot) HasData() bool {
	for _, l := range p.Lines {
		if len(l.X) > 0 {
			return true
		}
	}
	return false
}

// Snapshot copies the window under its lock, plots and lines in ascending
// id order.
func (w *Window) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{
		ClientID: w.ClientID,
		Version:  w.version,
		Plots:    make([]PlotSnapshot, 0, len(w.plots)),
	}
	for _, pid := range sortedIDs(w.plots) {
		p := w.plots[pid]
		ps := PlotSnapshot{
			ID:      p.ID,
			Options: p.Options.Clone(),
			Lines:   make([]LineSnapshot, 0, len(p.lines)),
		}
		for _, lid := range p.LineIDs() {
			l := p.lines[lid]
			xs, ys := l.XY()
			ps.Lines = append(ps.Lines, LineSnapshot{
				ID:      l.ID,
				Options: l.Options.Clone(),
				Shape:   l.shape,
				X:       xs,
				Y:       ys,
			})
		}
		snap.Plots = append(snap.Plots, ps)
	}
	return snap
}
