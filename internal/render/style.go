package render

import (
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Display defaults for lines.
const (
	DefaultPlotStyle  = "-o"
	DefaultMarkerSize = 4.0
)

// Stroke patterns understood in a plot_style string.
const (
	strokeNone = iota
	strokeSolid
	strokeDashed
	strokeDotted
	strokeDashDot
)

// lineFormat is a parsed plot_style such as "-o", "r--" or "x".
type lineFormat struct {
	stroke int
	marker bool
	color  string
}

// parseFormat reads a compact format string of an optional color letter,
// an optional stroke ("-", "--", ":", "-.") and an optional marker
// character. A string with only a marker draws markers without a stroke;
// a string with neither draws a solid line.
func parseFormat(s string) lineFormat {
	var f lineFormat
	hasStroke := false
	for i := 0; i < len(s); {
		rest := s[i:]
		switch {
		case strings.HasPrefix(rest, "--"):
			f.stroke, hasStroke = strokeDashed, true
			i += 2
		case strings.HasPrefix(rest, "-."):
			f.stroke, hasStroke = strokeDashDot, true
			i += 2
		case rest[0] == '-':
			f.stroke, hasStroke = strokeSolid, true
			i++
		case rest[0] == ':':
			f.stroke, hasStroke = strokeDotted, true
			i++
		case strings.ContainsRune(markerChars, rune(rest[0])):
			f.marker = true
			i++
		case strings.ContainsRune(colorLetters, rune(rest[0])):
			f.color = string(rest[0])
			i++
		default:
			i++
		}
	}
	if !hasStroke {
		if f.marker {
			f.stroke = strokeNone
		} else {
			f.stroke = strokeSolid
		}
	}
	return f
}

const (
	markerChars  = ".,ov^<>1234sp*hH+xXDd|_"
	colorLetters = "bgrcmykw"
)

var letterColors = map[string]string{
	"b": "1f77b4",
	"g": "2ca02c",
	"r": "d62728",
	"c": "17becf",
	"m": "9467bd",
	"y": "bcbd22",
	"k": "000000",
	"w": "ffffff",
}

var namedColors = map[string]string{
	"blue":    "1f77b4",
	"orange":  "ff7f0e",
	"green":   "2ca02c",
	"red":     "d62728",
	"purple":  "9467bd",
	"brown":   "8c564b",
	"pink":    "e377c2",
	"gray":    "7f7f7f",
	"grey":    "7f7f7f",
	"olive":   "bcbd22",
	"cyan":    "17becf",
	"black":   "000000",
	"white":   "ffffff",
	"magenta": "ff00ff",
	"yellow":  "ffff00",
}

// palette is the default color cycle, assigned by line position.
var palette = []string{
	"1f77b4", "ff7f0e", "2ca02c", "d62728", "9467bd",
	"8c564b", "e377c2", "7f7f7f", "bcbd22", "17becf",
}

// PaletteColor returns the default color of the i-th line.
func PaletteColor(i int) drawing.Color {
	return drawing.ColorFromHex(palette[i%len(palette)])
}

// ParseColor resolves a color letter, a name or a hex string ("#rrggbb"
// or "rrggbb"). ok is false when s is not recognized.
func ParseColor(s string) (c drawing.Color, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if hex, found := letterColors[s]; found {
		return drawing.ColorFromHex(hex), true
	}
	if hex, found := namedColors[s]; found {
		return drawing.ColorFromHex(hex), true
	}
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 && len(s) != 3 {
		return drawing.Color{}, false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return drawing.Color{}, false
		}
	}
	return drawing.ColorFromHex(s), true
}

// seriesStyle builds the go-chart style of one line. Explicit color wins
// over a color letter in the format, which wins over the palette.
func seriesStyle(format string, markerSize float64, color string, index int) chart.Style {
	f := parseFormat(format)

	col := PaletteColor(index)
	if f.color != "" {
		col, _ = ParseColor(f.color)
	}
	if color != "" {
		if c, ok := ParseColor(color); ok {
			col = c
		}
	}

	st := chart.Style{
		StrokeColor: col,
		StrokeWidth: 1.5,
	}
	switch f.stroke {
	case strokeNone:
		st.StrokeColor = drawing.ColorTransparent
	case strokeDashed:
		st.StrokeDashArray = []float64{6, 4}
	case strokeDotted:
		st.StrokeDashArray = []float64{1.5, 3}
	case strokeDashDot:
		st.StrokeDashArray = []float64{6, 3, 1.5, 3}
	}
	if f.marker && markerSize > 0 {
		st.DotWidth = markerSize
		st.DotColor = col
	}
	return st
}
