package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jask/testdock/internal/results"
)

// ---------------------------------------------------------------------------
// Catppuccin Mocha palette
// https://catppuccin.com/palette
// ---------------------------------------------------------------------------

const (
	colorPink     lipgloss.Color = "#f5c2e7"
	colorRed      lipgloss.Color = "#f38ba8"
	colorPeach    lipgloss.Color = "#fab387"
	colorYellow   lipgloss.Color = "#f9e2af"
	colorGreen    lipgloss.Color = "#a6e3a1"
	colorSky      lipgloss.Color = "#89dceb"
	colorLavender lipgloss.Color = "#b4befe"

	colorText     lipgloss.Color = "#cdd6f4"
	colorSubtext0 lipgloss.Color = "#a6adc8"
	colorOverlay1 lipgloss.Color = "#7f849c"
	colorOverlay0 lipgloss.Color = "#6c7086"
	colorSurface1 lipgloss.Color = "#45475a"
	colorSurface0 lipgloss.Color = "#313244"
	colorMantle   lipgloss.Color = "#181825"
)

// ---------------------------------------------------------------------------
// Semantic color aliases
// ---------------------------------------------------------------------------

const (
	colorAccent  = colorPink
	colorFocus   = colorLavender
	colorSuccess = colorGreen
	colorError   = colorRed
	colorWarning = colorYellow
	colorMuted   = colorOverlay1
	colorBorder  = colorSurface1
)

var (
	titleStyle        = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	selectedRowStyle  = lipgloss.NewStyle().Background(colorSurface0).Foreground(colorFocus).Bold(true)
	suiteLabelStyle   = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	leafLabelStyle    = lipgloss.NewStyle().Foreground(colorText)
	mutedStyle        = lipgloss.NewStyle().Foreground(colorMuted)
	statusBarStyle    = lipgloss.NewStyle().Foreground(colorSuccess).Background(colorSurface0)
	statusErrBarStyle = lipgloss.NewStyle().Foreground(colorError).Background(colorSurface0)
	footerStyle       = lipgloss.NewStyle().Background(colorMantle)
	footerKeyStyle    = lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Background(colorMantle)
	footerDescStyle   = lipgloss.NewStyle().Foreground(colorMuted).Background(colorMantle)
	searchMatchStyle  = lipgloss.NewStyle().Foreground(colorSubtext0)
)

// stateColor maps a display state to its indicator color.
func stateColor(st results.State) lipgloss.Color {
	switch st {
	case results.StatePassed:
		return colorSuccess
	case results.StateFailed:
		return colorError
	case results.StateInProgress:
		return colorSky
	case results.StateSkipped:
		return colorOverlay0
	case results.StateWarning:
		return colorWarning
	case results.StateInconclusive:
		return colorPeach
	default:
		return colorMuted
	}
}

// stateGlyph returns the indicator drawn before a row. In-progress rows use
// the spinner frame instead.
func stateGlyph(st results.State) string {
	switch st {
	case results.StatePassed:
		return "✓"
	case results.StateFailed:
		return "✗"
	case results.StateInProgress:
		return "…"
	case results.StateSkipped:
		return "↷"
	case results.StateWarning:
		return "!"
	case results.StateInconclusive:
		return "?"
	default:
		return "·"
	}
}

func stateIndicator(st results.State, spinnerFrame string) string {
	glyph := stateGlyph(st)
	if st == results.StateInProgress && spinnerFrame != "" {
		glyph = spinnerFrame
	}
	return lipgloss.NewStyle().Foreground(stateColor(st)).Render(glyph)
}
