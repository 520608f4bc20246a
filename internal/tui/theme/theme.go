// Package theme provides the Lip Gloss color palette and reusable styles
// for the scanner TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Phase colors.
var (
	ColorIdle      = lipgloss.Color("#4b5563")
	ColorStarting  = lipgloss.Color("#7c3aed")
	ColorRunning   = lipgloss.Color("#2563eb")
	ColorDelivered = lipgloss.Color("#16a34a")
	ColorStopped   = lipgloss.Color("#9ca3af")
	ColorFailed    = lipgloss.Color("#dc2626")
)

// Viewfinder colors.
var (
	ColorFocus      = lipgloss.Color("#facc15")
	ColorFocusDim   = lipgloss.Color("#a16207")
	ColorClose      = lipgloss.Color("#f9fafb")
	ColorPreview    = lipgloss.Color("#d1d5db")
	ColorNoPreview  = lipgloss.Color("#374151")
	ColorCodeResult = lipgloss.Color("#22c55e")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// PhaseColor returns the Lip Gloss color for a session phase name.
func PhaseColor(phase string) lipgloss.Color {
	switch phase {
	case "idle":
		return ColorIdle
	case "starting":
		return ColorStarting
	case "running":
		return ColorRunning
	case "delivered":
		return ColorDelivered
	case "stopped":
		return ColorStopped
	case "failed":
		return ColorFailed
	default:
		return ColorDefault
	}
}

// PhaseGlyph returns a Unicode glyph representing a session phase.
func PhaseGlyph(phase string) string {
	switch phase {
	case "idle":
		return "○"
	case "starting":
		return "◎"
	case "running":
		return "●"
	case "delivered":
		return "✓"
	case "stopped":
		return "■"
	case "failed":
		return "✗"
	default:
		return "·"
	}
}

// HealthColor returns the color for a device health status name.
func HealthColor(status string) lipgloss.Color {
	switch status {
	case "healthy":
		return ColorHealthy
	case "degraded":
		return ColorWarning
	case "failed":
		return ColorDanger
	default:
		return ColorDimmed
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleError = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorDanger)
)
