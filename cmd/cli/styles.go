package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorSuccess = lipgloss.Color("#10B981")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#64748B")
	colorInfo    = lipgloss.Color("#06B6D4")
)

var (
	SpinnerStyle = lipgloss.NewStyle().Foreground(colorPrimary)
	SuccessStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	MutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	HeaderStyle  = lipgloss.NewStyle().Foreground(colorInfo).Bold(true)
	KeyStyle     = lipgloss.NewStyle().Foreground(colorInfo)
)

// Truncate shortens s to max terminal cells, marking the cut with an ellipsis
func Truncate(s string, max int) string {
	return runewidth.Truncate(s, max, "...")
}
