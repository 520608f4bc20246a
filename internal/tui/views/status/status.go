package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Device string
	Phase  string
	Frames uint64
	Health capture.HealthSnapshot
	Width  int
}

// New creates a status bar model.
func New() Model {
	return Model{Phase: "idle"}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var devStr string
	if m.Device != "" {
		devStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● " + m.Device)
	} else {
		devStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ No camera")
	}

	phaseStr := lipgloss.NewStyle().Foreground(theme.PhaseColor(m.Phase)).
		Render(theme.PhaseGlyph(m.Phase) + " " + m.Phase)

	frames := fmt.Sprintf("%d frames", m.Frames)

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := devStr + sep + phaseStr + sep + frames
	if m.Health.Status != "" {
		content += sep + lipgloss.NewStyle().Foreground(theme.HealthColor(string(m.Health.Status))).
			Render(fmt.Sprintf("camera: %s", m.Health.Status))
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
