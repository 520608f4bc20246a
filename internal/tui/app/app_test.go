package app

import (
	"io"
	"log"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/decode"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/mock"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/scanner"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/session"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/tui/views/viewfinder"
)

// driver is a minimal Bubble Tea runtime: it runs commands on goroutines
// and feeds their messages back through Update on the test goroutine.
type driver struct {
	t    *testing.T
	m    Model
	msgs chan tea.Msg
	stop chan struct{}
}

func newDriver(t *testing.T, devices *capture.Registry, once bool, extra ...func(*Bridge) scanner.Option) *driver {
	t.Helper()
	bridge := NewBridge()
	sess := capture.NewSession()
	dec := decode.New(decode.Options{Symbologies: []capture.Symbology{capture.SymbologyQR}})
	opts := []scanner.Option{
		scanner.WithLogger(log.New(io.Discard, "", 0)),
		scanner.WithStateObserver(bridge.OnState),
		scanner.WithFeedback(bridge),
	}
	for _, fn := range extra {
		opts = append(opts, fn(bridge))
	}
	ctrl := scanner.New(sess, devices, dec, opts...)
	ctrl.Register(bridge)

	d := &driver{
		t:    t,
		msgs: make(chan tea.Msg, 64),
		stop: make(chan struct{}),
	}
	t.Cleanup(func() {
		close(d.stop)
		bridge.Close()
		ctrl.Close()
	})

	d.m = New(Config{
		Controller:   ctrl,
		Session:      sess,
		Surface:      viewfinder.NewSurface(0, 0),
		Bridge:       bridge,
		Once:         once,
		GlamourStyle: "notty",
	})
	d.update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return d
}

func (d *driver) run(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	go func() {
		msg := cmd()
		if batch, ok := msg.(tea.BatchMsg); ok {
			for _, c := range batch {
				d.run(c)
			}
			return
		}
		if msg == nil {
			return
		}
		select {
		case d.msgs <- msg:
		case <-d.stop:
		}
	}()
}

func (d *driver) update(msg tea.Msg) {
	next, cmd := d.m.Update(msg)
	d.m = next.(Model)
	d.run(cmd)
}

func (d *driver) start() {
	d.run(d.m.Init())
}

func (d *driver) until(what string, cond func(Model) bool) {
	d.t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond(d.m) {
		select {
		case msg := <-d.msgs:
			d.update(msg)
		case <-deadline:
			d.t.Fatalf("timed out waiting for %s (mode %d)", what, d.m.Mode())
		}
	}
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestScanDeliversResult(t *testing.T) {
	d := newDriver(t, capture.NewRegistry(mock.NewDevice([]string{"HELLO"}, 30, true)), false)
	d.start()

	d.until("result", func(m Model) bool { return m.Mode() == ModeResult })
	if got := d.m.Result(); got != "HELLO" {
		t.Fatalf("Result() = %q, want HELLO", got)
	}
	if v := d.m.View(); !strings.Contains(v, "HELLO") {
		t.Errorf("view should show the payload:\n%s", v)
	}
	d.until("delivered phase", func(m Model) bool { return m.statusBar.Phase == session.Delivered.String() })
	if d.m.debug.SessionCount() != 1 {
		t.Errorf("session log has %d sessions, want 1", d.m.debug.SessionCount())
	}
}

func TestConfirmFlashesFocusFrame(t *testing.T) {
	b := NewBridge()
	defer b.Close()
	m := New(Config{Session: capture.NewSession(), Surface: viewfinder.NewSurface(0, 0), Bridge: b})

	b.Confirm()
	msg := b.Listen()()
	if _, ok := msg.(ConfirmMsg); !ok {
		t.Fatalf("Listen() = %#v, want ConfirmMsg", msg)
	}
	next, cmd := m.Update(msg)
	if cmd == nil {
		t.Error("confirmation should keep listening")
	}
	if !next.(Model).finder.Flashing() {
		t.Error("confirmation should flash the focus frame")
	}
}

func TestBridgeConfirmNeverBlocks(t *testing.T) {
	b := NewBridge()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Confirm()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Confirm blocked on a full event buffer")
	}
	b.Close()
	b.Confirm()
}

func TestOnceQuitsAfterResult(t *testing.T) {
	d := newDriver(t, capture.NewRegistry(mock.NewDevice([]string{"ONCE"}, 30, true)), true)
	d.start()

	var quit bool
	deadline := time.After(5 * time.Second)
	for !quit {
		select {
		case msg := <-d.msgs:
			if _, ok := msg.(tea.QuitMsg); ok {
				quit = true
				continue
			}
			d.update(msg)
		case <-deadline:
			t.Fatal("timed out waiting for quit")
		}
	}
	if got := d.m.Result(); got != "ONCE" {
		t.Errorf("Result() = %q, want ONCE", got)
	}
}

func TestNoCameraShowsError(t *testing.T) {
	d := newDriver(t, capture.NewRegistry(), false)
	d.start()

	d.until("error", func(m Model) bool { return m.Mode() == ModeError })
	if d.m.errKind != scanner.NoCamera {
		t.Errorf("errKind = %v, want NoCamera", d.m.errKind)
	}
	if v := d.m.View(); !strings.Contains(v, "No camera available") {
		t.Errorf("view should explain the missing camera:\n%s", v)
	}

	d.update(keyRunes("r"))
	if d.m.Mode() != ModeError || d.m.handle != nil {
		t.Error("rescan without a camera should do nothing")
	}
}

func TestCloseAndRescan(t *testing.T) {
	d := newDriver(t, capture.NewRegistry(mock.NewDevice(nil, 30, true)), false)
	d.start()

	d.until("running", func(m Model) bool { return m.statusBar.Phase == session.Running.String() })
	first := d.m.handle

	d.update(tea.KeyMsg{Type: tea.KeyEsc})
	d.until("closed", func(m Model) bool { return m.Mode() == ModeClosed })
	if v := d.m.View(); !strings.Contains(v, "Scan closed") {
		t.Errorf("view should report the closed scan:\n%s", v)
	}

	d.update(keyRunes("r"))
	if d.m.Mode() != ModeScanning {
		t.Fatalf("mode = %d, want scanning", d.m.Mode())
	}
	if d.m.handle == first {
		t.Error("rescan should start a new session")
	}
	d.until("running again", func(m Model) bool {
		select {
		case <-m.handle.Started():
			return true
		default:
			return false
		}
	})
}

func promptAuthorizer(b *Bridge) scanner.Option {
	return scanner.WithAuthorizer(capture.NewPolicyAuthorizer(capture.NotDetermined, b.Prompt))
}

func TestPromptAllow(t *testing.T) {
	d := newDriver(t, capture.NewRegistry(mock.NewDevice(nil, 30, true)), false, promptAuthorizer)
	d.start()

	d.until("prompt", func(m Model) bool { return m.prompt != nil })
	if v := d.m.View(); !strings.Contains(v, "Allow qrscan to use the camera?") {
		t.Errorf("view should show the prompt:\n%s", v)
	}
	d.update(keyRunes("y"))
	if d.m.prompt != nil {
		t.Fatal("answering should clear the prompt")
	}
	d.until("running", func(m Model) bool { return m.statusBar.Phase == session.Running.String() })
}

func TestPromptDeny(t *testing.T) {
	d := newDriver(t, capture.NewRegistry(mock.NewDevice(nil, 30, true)), false, promptAuthorizer)
	d.start()

	d.until("prompt", func(m Model) bool { return m.prompt != nil })
	d.update(keyRunes("n"))
	d.until("permission error", func(m Model) bool { return m.Mode() == ModeError })
	if d.m.errKind != scanner.NoPermission {
		t.Errorf("errKind = %v, want NoPermission", d.m.errKind)
	}
	if v := d.m.View(); !strings.Contains(v, "Camera access denied") {
		t.Errorf("view should explain the denial:\n%s", v)
	}
}

func TestDebugOverlayAndQuit(t *testing.T) {
	d := newDriver(t, capture.NewRegistry(), false)

	d.update(keyRunes("d"))
	if !d.m.showDebug {
		t.Fatal("d should open the debug log")
	}
	if v := d.m.View(); !strings.Contains(v, "SESSION LOG") {
		t.Errorf("view should show the session log:\n%s", v)
	}
	d.update(tea.KeyMsg{Type: tea.KeyEsc})
	if d.m.showDebug {
		t.Error("esc should close the debug log")
	}

	_, cmd := d.m.Update(keyRunes("q"))
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestBridgeDropsAfterClose(t *testing.T) {
	b := NewBridge()
	b.ShowQRCodeResult("A")
	if msg, ok := b.Listen()().(ResultMsg); !ok || msg.Result != "A" {
		t.Fatalf("Listen() = %#v", msg)
	}

	b.Close()
	b.Close()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.ShowError(scanner.NoPermission)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sends should not block once the bridge is closed")
	}
}
