package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorText   = lipgloss.Color("#cdd6f4")
	colorMuted  = lipgloss.Color("#a6adc8")
	colorTrack  = lipgloss.Color("#45475a")
	colorGreen  = lipgloss.Color("#a6e3a1")
	colorYellow = lipgloss.Color("#f9e2af")
	colorRed    = lipgloss.Color("#f38ba8")
	colorAccent = lipgloss.Color("#74c7ec")

	appStyle = lipgloss.NewStyle().
		Foreground(colorText).
		Padding(1, 2)

	paneStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(colorTrack).
		Padding(1, 2)

	titleStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	scoreStyle = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	trackStyle = lipgloss.NewStyle().Foreground(colorTrack)
)

// levelColor returns the bar color for a loudness reading.
func levelColor(loudness int) lipgloss.Color {
	switch {
	case loudness >= 85:
		return colorRed
	case loudness >= 60:
		return colorYellow
	default:
		return colorGreen
	}
}
