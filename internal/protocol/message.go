// Package protocol defines the producer wire format: the framed JSON
// messages a client sends, the data value tree they carry, and their
// conversion into typed commands for the render loop.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	apperrors "github.com/livedash/host/internal/errors"
)

// Wire action names.
const (
	WireCreate     = "create"
	WireUpdate     = "update"
	WireConfig     = "config"
	WireRemove     = "remove"
	WireCreateLine = "create_line"
	WireUpdateLine = "update_line"
	WireConfigLine = "config_line"
	WireRemoveLine = "remove_line"
)

// DefaultLineID is the line every plot is seeded with, and the line a
// message without line_id addresses.
const DefaultLineID = "default"

// ID is a plot or line identifier. Producers may send a JSON string or a
// number; both normalize to the string form.
type ID string

// UnmarshalJSON accepts a string or a number. Numbers are keyed by value,
// so 1, 1.0 and 1e0 name the same target.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a string or a number")
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("identifier %s is not a representable number", n)
	}
	*id = ID(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

// Message is one framed producer record as it appears on the wire.
type Message struct {
	Action  string         `json:"action"`
	PlotID  *ID            `json:"plot_id,omitempty"`
	LineID  *ID            `json:"line_id,omitempty"`
	Options map[string]any `json:"options,omitempty"`
	Data    *Value         `json:"data,omitempty"`
	Mode    string         `json:"mode,omitempty"`
}

// Action is the tagged command kind applied by the render loop.
type Action uint8

const (
	ActionCreatePlot Action = iota + 1
	ActionUpdatePlot
	ActionConfigPlot
	ActionRemovePlot
	ActionCreateLine
	ActionUpdateLine
	ActionConfigLine
	ActionRemoveLine
)

var actionNames = map[Action]string{
	ActionCreatePlot: "create_plot",
	ActionUpdatePlot: "update_plot",
	ActionConfigPlot: "config_plot",
	ActionRemovePlot: "remove_plot",
	ActionCreateLine: "create_line",
	ActionUpdateLine: "update_line",
	ActionConfigLine: "config_line",
	ActionRemoveLine: "remove_line",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "action(" + strconv.Itoa(int(a)) + ")"
}

var wireActions = map[string]Action{
	WireCreate:     ActionCreatePlot,
	WireUpdate:     ActionUpdatePlot,
	WireConfig:     ActionConfigPlot,
	WireRemove:     ActionRemovePlot,
	WireCreateLine: ActionCreateLine,
	WireUpdateLine: ActionUpdateLine,
	WireConfigLine: ActionConfigLine,
	WireRemoveLine: ActionRemoveLine,
}

// Mode controls whether an update accumulates or starts over.
type Mode uint8

const (
	ModeAppend Mode = iota
	ModeReplace
)

func (m Mode) String() string {
	if m == ModeReplace {
		return "replace"
	}
	return "append"
}

// ParseMode accepts "", "append" and "replace".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "append":
		return ModeAppend, nil
	case "replace":
		return ModeReplace, nil
	default:
		return ModeAppend, apperrors.InvalidMode(s)
	}
}

// Command is a validated, typed message addressed to one client window.
type Command struct {
	Action      Action
	PlotID      string
	LineID      string
	PlotOptions PlotOptions
	LineOptions LineOptions
	Payload     Payload
	Mode        Mode
}

// ParseCommand validates a wire message and converts it into a Command.
// Options and data are parsed here so the render loop only ever sees
// typed records.
func ParseCommand(msg Message) (Command, error) {
	action, ok := wireActions[msg.Action]
	if !ok {
		if msg.Action == "" {
			return Command{}, apperrors.InvalidMessage("message has no action")
		}
		return Command{}, apperrors.UnknownAction(msg.Action)
	}
	if msg.PlotID == nil {
		return Command{}, apperrors.InvalidMessage("message has no plot_id")
	}

	cmd := Command{
		Action: action,
		PlotID: string(*msg.PlotID),
		LineID: DefaultLineID,
	}
	if msg.LineID != nil {
		cmd.LineID = string(*msg.LineID)
	}

	var err error
	switch action {
	case ActionCreatePlot, ActionConfigPlot:
		cmd.PlotOptions, err = ParsePlotOptions(msg.Options)
	case ActionCreateLine, ActionConfigLine:
		cmd.LineOptions, err = ParseLineOptions(msg.Options)
	case ActionUpdatePlot, ActionUpdateLine:
		if cmd.Mode, err = ParseMode(msg.Mode); err != nil {
			return Command{}, err
		}
		if msg.Data == nil {
			return Command{}, apperrors.InvalidPayload("missing data")
		}
		cmd.Payload, err = Classify(*msg.Data)
	}
	if err != nil {
		return Command{}, err
	}
	if action == ActionUpdatePlot {
		cmd.LineID = DefaultLineID
	}
	return cmd, nil
}
