// Package tui implements the `wirehttp monitor` live view: a bubbletea
// program that renders the TaskRunner's scheduler state and a scrolling feed
// of exchange lifecycle events inside a bordered lipgloss box, in the visual
// idiom of the teacher's settings_view.go (tab bar, rounded-border box,
// neon accent palette) adapted from a settings editor to a live monitor.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorNeonPink  = lipgloss.Color("205")
	ColorNeonCyan  = lipgloss.Color("51")
	ColorGray      = lipgloss.Color("240")
	ColorLightGray = lipgloss.Color("250")
	ColorGreen     = lipgloss.Color("42")
	ColorRed       = lipgloss.Color("196")
)

var (
	ActiveTabStyle = lipgloss.NewStyle().
			Foreground(ColorNeonPink).
			Bold(true).
			Padding(0, 1)

	TabStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Padding(0, 1)
)

// renderBox draws content inside a rounded border in a single accent color,
// after the teacher's renderBtopBox, with title rendered in bold on the line
// above the border. The title is not embedded in the border itself, and
// there is no double-width variant for a focused pane.
func renderBox(title, content string, width, height int, accent lipgloss.Color) string {
	border := lipgloss.RoundedBorder()
	style := lipgloss.NewStyle().
		Border(border).
		BorderForeground(accent).
		Width(width).
		Height(height).
		Padding(0, 1)

	titleBar := lipgloss.NewStyle().
		Foreground(accent).
		Bold(true).
		Render(" " + title + " ")

	return lipgloss.JoinVertical(lipgloss.Left, titleBar, style.Render(content))
}
