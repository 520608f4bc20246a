package result

import (
	"strings"
	"testing"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/scanner"
)

func TestMarkdown(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
		notWant string
	}{
		{"plain text", "ABC123", []string{"ABC123", "_6 characters_"}, "Link to"},
		{"url", "https://example.com/pay?id=1", []string{"Link to **example.com**"}, ""},
		{"trailing newline", "line\n", []string{"line\n```"}, "line\n\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := Markdown(tt.content)
			for _, w := range tt.want {
				if !strings.Contains(md, w) {
					t.Errorf("markdown missing %q:\n%s", w, md)
				}
			}
			if tt.notWant != "" && strings.Contains(md, tt.notWant) {
				t.Errorf("markdown should not contain %q:\n%s", tt.notWant, md)
			}
		})
	}
}

func TestFence(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"ABC123", "```"},
		{"a `tick` b", "```"},
		{"x\n```\ny", "````"},
		{"`````", "``````"},
	}
	for _, tt := range tests {
		if got := fence(tt.content); got != tt.want {
			t.Errorf("fence(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}

func TestMarkdownKeepsBackticksInBlock(t *testing.T) {
	payload := "before\n```\n# not a heading"
	want := "# QR code scanned\n\n````\n" + payload + "\n````\n\n_26 characters_\n"
	if md := Markdown(payload); md != want {
		t.Errorf("Markdown() =\n%s\nwant\n%s", md, want)
	}
}

func TestRender(t *testing.T) {
	out, err := New("notty").Render("ABC123", 80)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "ABC123") {
		t.Errorf("rendered output missing payload:\n%s", out)
	}
}

func TestErrorView(t *testing.T) {
	tests := []struct {
		kind scanner.ErrorKind
		want string
	}{
		{scanner.NoCamera, "No camera available"},
		{scanner.NoPermission, "Camera access denied"},
	}
	for _, tt := range tests {
		if v := ErrorView(tt.kind, 60); !strings.Contains(v, tt.want) {
			t.Errorf("ErrorView(%v) missing %q:\n%s", tt.kind, tt.want, v)
		}
	}
}
