// Package display renders runs, reports and lookups for the terminal.
package display

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
)

var (
	accent  = lipgloss.Color("#E0A526")
	muted   = lipgloss.Color("#777777")
	success = lipgloss.Color("#00CC66")
	failure = lipgloss.Color("#E04040")
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginTop(1)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(failure).Bold(true)
)

// Heading renders a section title.
func Heading(s string) string {
	return headingStyle.Render(s)
}

// Muted renders secondary text.
func Muted(s string) string {
	return mutedStyle.Render(s)
}

// Success renders a positive status line.
func Success(s string) string {
	return successStyle.Render(s)
}

// Error renders a failure status line.
func Error(s string) string {
	return errorStyle.Render(s)
}

// newTable returns a rounded go-pretty table that renders to w.
func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}
