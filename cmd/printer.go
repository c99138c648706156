package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	bold   = color.New(color.Bold)
)

// heading prints a bold title underlined with the given rule character.
func heading(w io.Writer, title string, rule byte) {
	bold.Fprintln(w, title)
	line := make([]byte, len(title))
	for i := range line {
		line[i] = rule
	}
	fmt.Fprintln(w, string(line))
}

// statusLabel colors a check status: pass green, warn yellow, fail red.
func statusLabel(status string) string {
	switch status {
	case statusPass:
		return green.Sprint("PASS")
	case statusWarn:
		return yellow.Sprint("WARN")
	default:
		return red.Sprint("FAIL")
	}
}
