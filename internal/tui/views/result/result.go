// Package result renders the outcome of a scan session.
package result

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/scanner"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/tui/theme"
)

// Renderer turns a decoded payload into styled markdown.
type Renderer struct {
	style string
}

// New returns a renderer using the named glamour style, e.g. "dark" or
// "notty".
func New(style string) *Renderer {
	if style == "" {
		style = "dark"
	}
	return &Renderer{style: style}
}

// Markdown builds the document shown for content.
func Markdown(content string) string {
	var b strings.Builder
	f := fence(content)
	b.WriteString("# QR code scanned\n\n")
	b.WriteString(f + "\n")
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(f + "\n\n")

	if u, err := url.Parse(strings.TrimSpace(content)); err == nil && u.Scheme != "" && u.Host != "" {
		fmt.Fprintf(&b, "Link to **%s**\n\n", u.Host)
	}
	fmt.Fprintf(&b, "_%d characters_\n", len([]rune(content)))
	return b.String()
}

// fence returns a code fence longer than any backtick run in content, so
// the payload cannot close the block early.
func fence(content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return strings.Repeat("`", max(3, longest+1))
}

// Render formats content for a terminal width columns wide.
func (r *Renderer) Render(content string, width int) (string, error) {
	if width < 20 {
		width = 20
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(r.style),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	out, err := tr.Render(Markdown(content))
	if err != nil {
		return "", fmt.Errorf("render result: %w", err)
	}
	return out, nil
}

// ErrorView explains a scanner failure.
func ErrorView(kind scanner.ErrorKind, width int) string {
	var title, hint string
	switch kind {
	case scanner.NoCamera:
		title = "No camera available"
		hint = "Check the capture.device setting or pass -device."
	case scanner.NoPermission:
		title = "Camera access denied"
		hint = "Set capture.permission to granted or prompt."
	default:
		title = "Scanner error"
		hint = kind.String()
	}

	if width < 30 {
		width = 30
	}
	return lipgloss.NewStyle().
		Width(width-4).
		Padding(1, 2).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorDanger).
		Render(lipgloss.JoinVertical(lipgloss.Left,
			theme.StyleError.Render(title),
			"",
			theme.StyleDimmed.Render(hint),
		))
}
