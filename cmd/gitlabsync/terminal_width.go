// SPDX-License-Identifier: MIT
package gitlabsync

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	narrowTableWidth = 100
	tinyTableWidth   = 80
)

var getTerminalSize = term.GetSize

// stdoutWidth returns the width of stdout when it is a terminal.
func stdoutWidth(cmd *cobra.Command) (int, bool) {
	file, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(file.Fd())
	if !isTerminalFD(fd) {
		return 0, false
	}
	width, _, err := getTerminalSize(fd)
	if err != nil || width <= 0 {
		return 0, false
	}
	return width, true
}

// cellLimit picks a column budget for the current terminal. Zero means
// unlimited.
func cellLimit(cmd *cobra.Command, normal, narrow, tiny int) int {
	width, ok := stdoutWidth(cmd)
	if !ok {
		return normal
	}
	return cellLimitForWidth(width, normal, narrow, tiny)
}

func cellLimitForWidth(width, normal, narrow, tiny int) int {
	switch {
	case width < tinyTableWidth && tiny > 0:
		return tiny
	case width < narrowTableWidth && narrow > 0:
		return narrow
	default:
		return normal
	}
}

func truncateCell(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}
