package render

import (
	"image"
	"math"
)

// Grid returns the panel grid for n plots: cols = ceil(sqrt(n)) and
// rows = ceil(n / cols). Zero plots yield a 0x0 grid.
func Grid(n int) (rows, cols int) {
	if n <= 0 {
		return 0, 0
	}
	cols = int(math.Ceil(math.Sqrt(float64(n))))
	rows = (n + cols - 1) / cols
	return rows, cols
}

// Layout places panels of a fixed size row-major under a title band.
type Layout struct {
	Rows, Cols     int
	PanelW, PanelH int
	TitleH         int
	Used           int
}

// NewLayout computes the layout for n panels.
func NewLayout(n, panelW, panelH, titleH int) Layout {
	rows, cols := Grid(n)
	return Layout{Rows: rows, Cols: cols, PanelW: panelW, PanelH: panelH, TitleH: titleH, Used: n}
}

// Bounds returns the size of the whole figure.
func (l Layout) Bounds() image.Rectangle {
	return image.Rect(0, 0, l.Cols*l.PanelW, l.TitleH+l.Rows*l.PanelH)
}

// Cell returns the rectangle of the i-th panel in row-major order.
func (l Layout) Cell(i int) image.Rectangle {
	r, c := i/l.Cols, i%l.Cols
	x0 := c * l.PanelW
	y0 := l.TitleH + r*l.PanelH
	return image.Rect(x0, y0, x0+l.PanelW, y0+l.PanelH)
}

// Hidden returns the number of unused cells.
func (l Layout) Hidden() int {
	return l.Rows*l.Cols - l.Used
}
