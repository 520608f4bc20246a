package app

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/scanner"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/session"
)

// StateMsg carries a session phase change.
type StateMsg struct{ State *session.State }

// ResultMsg carries a decoded payload from the delegate.
type ResultMsg struct{ Result string }

// ErrorMsg carries a delegate error.
type ErrorMsg struct{ Kind scanner.ErrorKind }

// ConfirmMsg reports the first accepted code of a session.
type ConfirmMsg struct{}

// PromptMsg asks the user for camera access. The answer goes to Reply.
type PromptMsg struct{ Reply chan<- bool }

// Bridge is the scanner delegate and state observer of the TUI. It turns
// controller callbacks into tea messages read by Listen. Callbacks arrive on
// the controller executor; once the bridge is closed they are dropped so the
// executor never blocks on a UI that has gone away.
type Bridge struct {
	events chan tea.Msg
	done   chan struct{}
	once   sync.Once
}

func NewBridge() *Bridge {
	return &Bridge{
		events: make(chan tea.Msg, 64),
		done:   make(chan struct{}),
	}
}

func (b *Bridge) ShowError(kind scanner.ErrorKind) { b.send(ErrorMsg{Kind: kind}) }

func (b *Bridge) ShowQRCodeResult(result string) { b.send(ResultMsg{Result: result}) }

// OnState is passed to scanner.WithStateObserver.
func (b *Bridge) OnState(st *session.State) { b.send(StateMsg{State: st}) }

// Confirm implements scanner.Feedback. It runs on the decoder goroutine and
// never blocks it: with the event buffer full the confirmation is dropped.
func (b *Bridge) Confirm() {
	select {
	case b.events <- ConfirmMsg{}:
	case <-b.done:
	default:
	}
}

// Prompt is a capture.PromptFunc that asks through the TUI.
func (b *Bridge) Prompt(ctx context.Context) bool {
	reply := make(chan bool, 1)
	b.send(PromptMsg{Reply: reply})
	select {
	case ok := <-reply:
		return ok
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	}
}

func (b *Bridge) send(msg tea.Msg) {
	select {
	case b.events <- msg:
	case <-b.done:
	}
}

// Listen waits for the next controller event.
func (b *Bridge) Listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.done:
			return nil
		}
	}
}

func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}
