// Package render draws dashboard snapshots: one go-chart panel per plot,
// composed into a grid figure per client, and hands the result to
// surfaces.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
	"slices"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/livedash/host/internal/dashboard"
	apperrors "github.com/livedash/host/internal/errors"
	"github.com/livedash/host/internal/protocol"
)

// Default panel labels.
const (
	DefaultXLabel = "X"
	DefaultYLabel = "Y"
)

// DefaultTitle returns the title of a plot without a title option.
func DefaultTitle(plotID string) string {
	return "Plot " + plotID
}

var gridStyle = chart.Style{
	StrokeColor: drawing.ColorFromHex("e0e0e0"),
	StrokeWidth: 1,
}

// Panel draws one plot at the given size. A plot with no data yields a
// placeholder panel rather than an empty chart.
func Panel(p dashboard.PlotSnapshot, width, height int) (image.Image, error) {
	title := DefaultTitle(p.ID)
	if p.Options.Title != nil {
		title = *p.Options.Title
	}
	if !p.HasData() {
		return placeholder(title, width, height), nil
	}

	xlabel, ylabel := DefaultXLabel, DefaultYLabel
	if p.Options.XLabel != nil {
		xlabel = *p.Options.XLabel
	}
	if p.Options.YLabel != nil {
		ylabel = *p.Options.YLabel
	}

	series := make([]chart.Series, 0, len(p.Lines))
	var xs, ys []float64
	for i, l := range p.Lines {
		if len(l.X) == 0 {
			continue
		}
		series = append(series, lineSeries(l, i))
		xs = append(xs, l.X...)
		ys = append(ys, l.Y...)
	}

	xr := axisRange(xs, p.Options.XLim)
	yr := axisRange(ys, p.Options.YLim)

	ch := chart.Chart{
		Title:      title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 28, Left: 12, Right: 16, Bottom: 12}},
		XAxis: chart.XAxis{
			Name:           xlabel,
			Range:          xr,
			GridMajorStyle: gridStyle,
		},
		YAxis: chart.YAxis{
			Name:           ylabel,
			Range:          yr,
			GridMajorStyle: gridStyle,
		},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, apperrors.RenderFailed(fmt.Sprintf("plot %q", p.ID), err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		return nil, apperrors.RenderFailed(fmt.Sprintf("plot %q", p.ID), err)
	}
	return img, nil
}

// lineSeries converts one line. A single point is duplicated so the
// series still has a drawable extent.
func lineSeries(l dashboard.LineSnapshot, index int) chart.ContinuousSeries {
	format := DefaultPlotStyle
	if l.Options.Style != nil {
		format = *l.Options.Style
	}
	markerSize := DefaultMarkerSize
	if l.Options.MarkerSize != nil {
		markerSize = *l.Options.MarkerSize
	}
	label := l.ID
	if l.Options.Label != nil {
		label = *l.Options.Label
	}
	color := ""
	if l.Options.Color != nil {
		color = *l.Options.Color
	}

	xs, ys := clampValues(l.X), clampValues(l.Y)
	if len(xs) == 1 {
		xs = []float64{xs[0], xs[0]}
		ys = []float64{ys[0], ys[0]}
	}
	return chart.ContinuousSeries{
		Name:    label,
		XValues: xs,
		YValues: ys,
		Style:   seriesStyle(format, markerSize, color, index),
	}
}

// axisRange returns an explicit non-degenerate range: the limits option
// when set, otherwise the data extent padded by 5%.
func axisRange(values []float64, limits *protocol.Limits) *chart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	if limits != nil {
		lo, hi = limits.Min, limits.Max
		if lo > hi {
			lo, hi = hi, lo
		}
	} else {
		for _, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if math.IsInf(lo, 1) {
			return &chart.ContinuousRange{Min: 0, Max: 1}
		}
		pad := hi*0.05 - lo*0.05
		lo, hi = lo-pad, hi+pad
	}
	lo, hi = clampAxis(lo), clampAxis(hi)
	if hi-lo == 0 {
		d := math.Max(math.Abs(lo)*0.05, 0.5)
		lo, hi = lo-d, hi+d
	}
	return &chart.ContinuousRange{Min: lo, Max: hi}
}

// maxAxis bounds both ends of a range so Max-Min stays finite.
const maxAxis = math.MaxFloat64 / 4

func clampAxis(v float64) float64 {
	return math.Max(-maxAxis, math.Min(v, maxAxis))
}

// clampValues returns vs, or a clamped copy when any value lies outside
// the drawable range.
func clampValues(vs []float64) []float64 {
	for i, v := range vs {
		if v < -maxAxis || v > maxAxis {
			out := slices.Clone(vs)
			for j := i; j < len(out); j++ {
				out[j] = clampAxis(out[j])
			}
			return out
		}
	}
	return vs
}

// placeholder draws a titled, empty panel.
func placeholder(title string, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill(img, img.Bounds(), image.White)
	outline(img, img.Bounds().Inset(8), borderColor)
	drawTextCentered(img, image.Rect(0, 0, width, 28), title, textColor)
	drawTextCentered(img, img.Bounds(), "no data", mutedColor)
	return img
}
