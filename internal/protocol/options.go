package protocol

import (
	"maps"

	apperrors "github.com/livedash/host/internal/errors"
)

// Recognized plot option keys.
const (
	OptTitle  = "title"
	OptXLabel = "xlabel"
	OptYLabel = "ylabel"
	OptXLim   = "xlim"
	OptYLim   = "ylim"
)

// Recognized line option keys.
const (
	OptPlotStyle  = "plot_style"
	OptMarkerSize = "markersize"
	OptLabel      = "label"
	OptColor      = "color"
)

// Limits is an axis range.
type Limits struct {
	Min, Max float64
}

// PlotOptions are the display options of one panel. Nil fields are unset.
// Extra retains unrecognized keys verbatim.
type PlotOptions struct {
	Title  *string
	XLabel *string
	YLabel *string
	XLim   *Limits
	YLim   *Limits
	Extra  map[string]any
}

// Merge overlays every field set in other onto o.
func (o *PlotOptions) Merge(other PlotOptions) {
	if other.Title != nil {
		o.Title = other.Title
	}
	if other.XLabel != nil {
		o.XLabel = other.XLabel
	}
	if other.YLabel != nil {
		o.YLabel = other.YLabel
	}
	if other.XLim != nil {
		o.XLim = other.XLim
	}
	if other.YLim != nil {
		o.YLim = other.YLim
	}
	o.Extra = mergeExtra(o.Extra, other.Extra)
}

// Clone returns a deep copy.
func (o PlotOptions) Clone() PlotOptions {
	c := o
	c.Title = clonePtr(o.Title)
	c.XLabel = clonePtr(o.XLabel)
	c.YLabel = clonePtr(o.YLabel)
	c.XLim = clonePtr(o.XLim)
	c.YLim = clonePtr(o.YLim)
	c.Extra = maps.Clone(o.Extra)
	return c
}

// LineOptions are the display options of one line.
type LineOptions struct {
	Style      *string
	MarkerSize *float64
	Label      *string
	Color      *string
	Extra      map[string]any
}

// Merge overlays every field set in other onto o.
func (o *LineOptions) Merge(other LineOptions) {
	if other.Style != nil {
		o.Style = other.Style
	}
	if other.MarkerSize != nil {
		o.MarkerSize = other.MarkerSize
	}
	if other.Label != nil {
		o.Label = other.Label
	}
	if other.Color != nil {
		o.Color = other.Color
	}
	o.Extra = mergeExtra(o.Extra, other.Extra)
}

// Clone returns a deep copy.
func (o LineOptions) Clone() LineOptions {
	c := o
	c.Style = clonePtr(o.Style)
	c.MarkerSize = clonePtr(o.MarkerSize)
	c.Label = clonePtr(o.Label)
	c.Color = clonePtr(o.Color)
	c.Extra = maps.Clone(o.Extra)
	return c
}

// ParsePlotOptions converts a wire options object. A recognized key with
// the wrong type is rejected; unknown keys go to Extra.
func ParsePlotOptions(raw map[string]any) (PlotOptions, error) {
	var o PlotOptions
	for k, v := range raw {
		var err error
		switch k {
		case OptTitle:
			o.Title, err = stringOpt(k, v)
		case OptXLabel:
			o.XLabel, err = stringOpt(k, v)
		case OptYLabel:
			o.YLabel, err = stringOpt(k, v)
		case OptXLim:
			o.XLim, err = limitsOpt(k, v)
		case OptYLim:
			o.YLim, err = limitsOpt(k, v)
		default:
			if o.Extra == nil {
				o.Extra = make(map[string]any)
			}
			o.Extra[k] = v
		}
		if err != nil {
			return PlotOptions{}, err
		}
	}
	return o, nil
}

// ParseLineOptions converts a wire options object for a line.
func ParseLineOptions(raw map[string]any) (LineOptions, error) {
	var o LineOptions
	for k, v := range raw {
		var err error
		switch k {
		case OptPlotStyle:
			o.Style, err = stringOpt(k, v)
		case OptMarkerSize:
			o.MarkerSize, err = numberOpt(k, v)
			if err == nil && *o.MarkerSize < 0 {
				err = apperrors.InvalidOptions(k, "a non-negative number")
			}
		case OptLabel:
			o.Label, err = stringOpt(k, v)
		case OptColor:
			o.Color, err = stringOpt(k, v)
		default:
			if o.Extra == nil {
				o.Extra = make(map[string]any)
			}
			o.Extra[k] = v
		}
		if err != nil {
			return LineOptions{}, err
		}
	}
	return o, nil
}

func stringOpt(key string, v any) (*string, error) {
	s, ok := v.(string)
	if !ok {
		return nil, apperrors.InvalidOptions(key, "a string")
	}
	return &s, nil
}

func numberOpt(key string, v any) (*float64, error) {
	f, ok := v.(float64)
	if !ok {
		return nil, apperrors.InvalidOptions(key, "a number")
	}
	return &f, nil
}

func limitsOpt(key string, v any) (*Limits, error) {
	arr, ok := v.([]any)
	if !ok || len(arr) != 2 {
		return nil, apperrors.InvalidOptions(key, "a [min, max] pair")
	}
	lo, ok1 := arr[0].(float64)
	hi, ok2 := arr[1].(float64)
	if !ok1 || !ok2 {
		return nil, apperrors.InvalidOptions(key, "a [min, max] pair")
	}
	return &Limits{Min: lo, Max: hi}, nil
}

func mergeExtra(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	maps.Copy(dst, src)
	return dst
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
