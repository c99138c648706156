package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/livedash/host/internal/dashboard"
	apperrors "github.com/livedash/host/internal/errors"
)

// TitleHeight is the height of the band holding the figure title.
const TitleHeight = 28

// Renderer composes per-client figures from fixed-size panels.
type Renderer struct {
	PanelWidth  int
	PanelHeight int
}

// NewRenderer creates a renderer drawing panels of the given size.
func NewRenderer(panelWidth, panelHeight int) *Renderer {
	return &Renderer{PanelWidth: panelWidth, PanelHeight: panelHeight}
}

// FigureTitle returns the title drawn above a client's panels.
func FigureTitle(clientID uint64) string {
	return fmt.Sprintf("Client %d Plots", clientID)
}

// Figure draws every plot of the snapshot in a grid. A panel that fails
// to draw is left blank; the returned image is still usable and the error
// joins every panel failure.
func (r *Renderer) Figure(snap dashboard.Snapshot) (*image.RGBA, error) {
	if len(snap.Plots) == 0 {
		return nil, apperrors.New(apperrors.CodeRenderFailed, "window has no plots")
	}

	layout := NewLayout(len(snap.Plots), r.PanelWidth, r.PanelHeight, TitleHeight)
	img := image.NewRGBA(layout.Bounds())
	fill(img, img.Bounds(), image.White)
	drawTextCentered(img, image.Rect(0, 0, img.Bounds().Dx(), TitleHeight), FigureTitle(snap.ClientID), textColor)

	var errs []error
	for i, p := range snap.Plots {
		cell := layout.Cell(i)
		panel, err := safePanel(p, r.PanelWidth, r.PanelHeight)
		if err != nil {
			errs = append(errs, err)
			panel = blank(r.PanelWidth, r.PanelHeight)
		}
		drawImage(img, cell, panel)
	}
	return img, errors.Join(errs...)
}

// safePanel draws one panel, turning a panic in the chart library into a
// render error for that panel alone.
func safePanel(p dashboard.PlotSnapshot, width, height int) (img image.Image, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			img = nil
			err = apperrors.New(apperrors.CodeRenderFailed, fmt.Sprintf("plot %q: render panic: %v", p.ID, rec))
		}
	}()
	return Panel(p, width, height)
}

// EncodePNG encodes a figure.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, apperrors.RenderFailed("png", err)
	}
	return buf.Bytes(), nil
}
