// Package debug renders the session timeline overlay: one row for every
// phase change of every scan session the TUI has seen, numbered in the
// order the sessions appeared, interleaved with the key presses and
// controller messages around them.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/session"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/tui/theme"
)

const maxRows = 200

// Row is one timeline line. Session is empty for events outside a session.
type Row struct {
	At      time.Time
	Session string
	Phase   string
	Detail  string
	Failed  bool
}

// Model keeps the timeline and a viewport over it. The viewport follows
// new rows until the user scrolls up.
type Model struct {
	rows     []Row
	sessions map[string]int
	width    int
	view     viewport.Model
	follow   bool
}

func New() Model {
	m := Model{
		sessions: make(map[string]int),
		view:     viewport.New(0, 0),
		follow:   true,
	}
	m.SetSize(80, 20)
	return m
}

// Observe records a session phase change.
func (m *Model) Observe(st *session.State) {
	if _, ok := m.sessions[st.ID]; !ok {
		m.sessions[st.ID] = len(m.sessions) + 1
	}
	m.push(Row{
		At:      time.Now(),
		Session: st.ID,
		Phase:   st.Phase.String(),
		Detail:  describe(st),
		Failed:  st.Phase == session.Failed,
	})
}

// Note records an event that belongs to no session.
func (m *Model) Note(format string, args ...interface{}) {
	m.push(Row{At: time.Now(), Detail: fmt.Sprintf(format, args...)})
}

// Fail records an error that belongs to no session.
func (m *Model) Fail(format string, args ...interface{}) {
	m.push(Row{At: time.Now(), Detail: fmt.Sprintf(format, args...), Failed: true})
}

// Rows returns the recorded rows, oldest first.
func (m Model) Rows() []Row { return m.rows }

// SessionCount is the number of distinct sessions observed.
func (m Model) SessionCount() int { return len(m.sessions) }

// SetSize fits the timeline to a pane.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.view.Width = max(width-6, 20)
	m.view.Height = max(height-6, 3)
	m.refresh()
}

func (m *Model) ScrollUp(n int) {
	m.view.LineUp(n)
	m.follow = m.view.AtBottom()
}

func (m *Model) ScrollDown(n int) {
	m.view.LineDown(n)
	m.follow = m.view.AtBottom()
}

// Following reports whether new rows scroll into view.
func (m Model) Following() bool { return m.follow }

func (m *Model) push(r Row) {
	m.rows = append(m.rows, r)
	if len(m.rows) > maxRows {
		m.rows = m.rows[len(m.rows)-maxRows:]
	}
	m.refresh()
}

func (m *Model) refresh() {
	lines := make([]string, len(m.rows))
	for i, r := range m.rows {
		lines[i] = m.line(r)
	}
	m.view.SetContent(strings.Join(lines, "\n"))
	if m.follow {
		m.view.GotoBottom()
	}
}

func (m Model) line(r Row) string {
	ts := theme.StyleDimmed.Render(r.At.Format("15:04:05.000"))
	if r.Session == "" {
		style := theme.StyleDimmed
		if r.Failed {
			style = theme.StyleError
		}
		return fmt.Sprintf("%s %s", ts, style.Render("      "+r.Detail))
	}
	color := lipgloss.NewStyle().Foreground(theme.PhaseColor(r.Phase))
	tag := color.Render(fmt.Sprintf("%s #%-3d", theme.PhaseGlyph(r.Phase), m.sessions[r.Session]))
	phase := color.Width(10).Render(r.Phase)
	return fmt.Sprintf("%s %s %s %s", ts, tag, phase, r.Detail)
}

func describe(st *session.State) string {
	switch st.Phase {
	case session.Starting:
		if st.Device != "" {
			return "on " + st.Device
		}
		return ""
	case session.Running:
		if st.RunningAt != nil {
			return "capture up after " + round(st.RunningAt.Sub(st.StartedAt))
		}
		return ""
	case session.Delivered:
		return fmt.Sprintf("%q in %s", clip(st.Result, 32), round(st.Duration(time.Now())))
	case session.Stopped, session.Failed:
		if st.Error != "" {
			return st.Error + " after " + round(st.Duration(time.Now()))
		}
		return "after " + round(st.Duration(time.Now()))
	default:
		return ""
	}
}

func round(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// View renders the timeline as an overlay panel.
func (m Model) View() string {
	title := theme.StyleHeader.Render(" SESSION LOG ")
	summary := theme.StyleDimmed.Render(fmt.Sprintf("%d sessions  %d events  j/k:scroll  esc:close",
		len(m.sessions), len(m.rows)))

	body := m.view.View()
	if len(m.rows) == 0 {
		body = theme.StyleDimmed.Render("No sessions yet.")
	} else if !m.follow {
		summary += theme.StyleDimmed.Render("  (paused)")
	}

	return lipgloss.NewStyle().
		Width(max(m.width-2, 24)).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", summary))
}
