// SPDX-License-Identifier: MIT
package termstyle

import (
	"strings"

	"github.com/fatih/color"
	"github.com/liggitt/tabwriter"
)

// Semantic colors used by table output.
const (
	Healthy = color.FgGreen
	Warn    = color.FgYellow
	Error   = color.FgRed
	Info    = color.FgBlue
)

// Colorize wraps a value in ANSI escapes when color output is enabled.
func Colorize(enabled bool, value string, attr color.Attribute) string {
	if !enabled || value == "" {
		return value
	}
	c := color.New(attr)
	c.EnableColor()
	start, reset, _ := strings.Cut(c.Sprint(value), value)
	// Hide ANSI sequences from tabwriter width calculations so columns align.
	esc := string([]byte{tabwriter.Escape})
	return esc + start + esc + value + esc + reset + esc
}
