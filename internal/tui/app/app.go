package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/scanner"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/tui/theme"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/tui/views/debug"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/tui/views/result"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/tui/views/status"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/tui/views/viewfinder"
)

// Mode is what the main pane shows.
type Mode int

const (
	ModeStarting Mode = iota
	ModeScanning
	ModeResult
	ModeError
	ModeClosed
)

// chromeHeight is the status bar plus the help line.
const chromeHeight = 4

type setupMsg struct {
	status scanner.Status
	err    error
}

type handleDoneMsg struct {
	id     string
	result string
	err    error
}

type tickMsg time.Time

// Config wires the model to a controller built by the caller. The
// controller must use Bridge as its delegate and state observer.
type Config struct {
	Controller *scanner.Controller
	Session    *capture.Session
	Surface    *viewfinder.Surface
	Bridge     *Bridge
	// Once quits after the first delivered result.
	Once            bool
	GlamourStyle    string
	HealthThreshold int
}

// Model is the root Bubble Tea model.
type Model struct {
	ctrl     *scanner.Controller
	session  *capture.Session
	surface  *viewfinder.Surface
	bridge   *Bridge
	renderer *result.Renderer
	ctx      context.Context
	cancel   context.CancelFunc

	once      bool
	threshold int

	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	width   int
	height  int

	statusBar status.Model
	finder    viewfinder.Model
	debug     debug.Model
	showDebug bool

	mode       Mode
	prompt     chan<- bool
	handle     *scanner.Handle
	result     string
	resultView string
	errKind    scanner.ErrorKind
}

func New(cfg Config) Model {
	ctx, cancel := context.WithCancel(context.Background())
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorFocus)

	threshold := cfg.HealthThreshold
	if threshold <= 0 {
		threshold = capture.DefaultFailureThreshold
	}
	return Model{
		ctrl:      cfg.Controller,
		session:   cfg.Session,
		surface:   cfg.Surface,
		bridge:    cfg.Bridge,
		renderer:  result.New(cfg.GlamourStyle),
		ctx:       ctx,
		cancel:    cancel,
		once:      cfg.Once,
		threshold: threshold,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		spinner:   sp,
		statusBar: status.New(),
		finder:    viewfinder.New(),
		debug:     debug.New(),
	}
}

// Result is the last delivered payload, if any.
func (m Model) Result() string { return m.result }

func (m Model) Mode() Mode { return m.mode }

// Init attaches the camera and starts listening for controller events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.bridge.Listen(), m.setUp(), tick())
}

func (m Model) setUp() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		ctrl.SetUp(ctx)
		st, err := ctrl.Status(ctx)
		return setupMsg{status: st, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/viewfinder.FPS, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitHandle(h *scanner.Handle) tea.Cmd {
	return func() tea.Msg {
		<-h.Done()
		r, err := h.Result()
		return handleDoneMsg{id: h.ID(), result: r, err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.help.Width = msg.Width
		m.surface.Resize(msg.Width, m.paneHeight())
		m.debug.SetSize(msg.Width, m.paneHeight())
		if m.result != "" {
			m.renderResult()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case setupMsg:
		if msg.err != nil {
			m.debug.Fail("setup: %v", msg.err)
			return m, nil
		}
		m.statusBar.Device = msg.status.Device
		if !msg.status.Configured {
			m.mode = ModeError
			if m.errKind == 0 {
				m.errKind = scanner.NoCamera
			}
			return m, nil
		}
		m.debug.Note("camera ready: %s", msg.status.Device)
		return m.startScan()

	case handleDoneMsg:
		return m.handleDone(msg)

	case StateMsg:
		m.statusBar.Phase = msg.State.Phase.String()
		m.debug.Observe(msg.State)
		return m, m.bridge.Listen()

	case ConfirmMsg:
		m.finder.Flash()
		m.debug.Note("code accepted")
		return m, m.bridge.Listen()

	case ResultMsg:
		m.setResult(msg.Result)
		return m, m.bridge.Listen()

	case PromptMsg:
		m.prompt = msg.Reply
		m.debug.Note("asking for camera access")
		return m, m.bridge.Listen()

	case ErrorMsg:
		m.errKind = msg.Kind
		m.mode = ModeError
		m.debug.Fail("delegate error: %s", msg.Kind)
		return m, m.bridge.Listen()

	case tickMsg:
		m.finder.Tick()
		m.statusBar.Frames = m.session.FrameCount()
		m.statusBar.Health = m.session.Health().Snapshot(m.threshold)
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m.quit()
	}

	if m.prompt != nil {
		switch {
		case key.Matches(msg, m.keys.Allow):
			m.answer(true)
		case key.Matches(msg, m.keys.Deny), key.Matches(msg, m.keys.Close):
			m.answer(false)
		}
		return m, nil
	}

	if m.showDebug {
		switch {
		case key.Matches(msg, m.keys.Close), key.Matches(msg, m.keys.Debug):
			m.showDebug = false
		case key.Matches(msg, m.keys.Up):
			m.debug.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.debug.ScrollDown(1)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Debug):
		m.showDebug = true
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Close):
		if m.mode != ModeScanning {
			return m, nil
		}
		m.debug.Note("key: close")
		if c := m.surface.CloseControl(); c != nil {
			c.Activate()
		} else if m.handle != nil {
			m.handle.Cancel()
		}
		return m, nil

	case key.Matches(msg, m.keys.Rescan):
		if m.mode == ModeScanning || m.mode == ModeStarting {
			return m, nil
		}
		if m.mode == ModeError && m.errKind == scanner.NoCamera {
			return m, nil
		}
		m.debug.Note("key: rescan")
		return m.startScan()
	}

	return m, nil
}

func (m *Model) answer(allow bool) {
	m.prompt <- allow
	m.prompt = nil
	m.debug.Note("key: camera access allowed: %v", allow)
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.prompt != nil {
		m.answer(false)
	}
	m.cancel()
	m.bridge.Close()
	return m, tea.Quit
}

func (m Model) startScan() (tea.Model, tea.Cmd) {
	m.mode = ModeScanning
	m.result = ""
	m.resultView = ""
	m.errKind = 0
	m.handle = m.ctrl.RunSession(m.surface)
	return m, waitHandle(m.handle)
}

func (m Model) handleDone(msg handleDoneMsg) (tea.Model, tea.Cmd) {
	if m.handle == nil || msg.id != m.handle.ID() {
		return m, nil
	}
	m.prompt = nil

	var devErr *scanner.DeviceError
	switch {
	case msg.err == nil:
		m.setResult(msg.result)
		if m.once {
			return m.quit()
		}
	case errors.As(msg.err, &devErr):
		m.errKind = devErr.Kind
		m.mode = ModeError
	case errors.Is(msg.err, scanner.ErrCanceled):
		m.mode = ModeClosed
	case errors.Is(msg.err, scanner.ErrSuperseded):
	default:
		log.Printf("scan session %s ended: %v", msg.id, msg.err)
		m.debug.Fail("%v", msg.err)
		m.mode = ModeClosed
	}
	return m, nil
}

func (m *Model) setResult(r string) {
	if m.result == r && m.mode == ModeResult {
		return
	}
	m.result = r
	m.mode = ModeResult
	m.renderResult()
}

func (m *Model) renderResult() {
	out, err := m.renderer.Render(m.result, m.width)
	if err != nil {
		log.Printf("render result: %v", err)
		out = m.result
	}
	m.resultView = out
}

func (m Model) paneHeight() int {
	h := m.height - chromeHeight
	if h < 1 {
		h = 1
	}
	return h
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var body string
	switch {
	case m.showDebug:
		body = m.debug.View()
	case m.prompt != nil:
		body = "\n  " + theme.StyleHeader.Render("Allow qrscan to use the camera?") +
			theme.StyleDimmed.Render("  y:allow  n:deny")
	case m.mode == ModeStarting:
		body = "\n  " + m.spinner.View() + " Attaching camera..."
	case m.mode == ModeScanning:
		body = m.finder.View(m.surface.Scene())
	case m.mode == ModeResult:
		body = m.resultView
	case m.mode == ModeError:
		body = result.ErrorView(m.errKind, m.width)
	default:
		body = theme.StyleDimmed.Render("\n  Scan closed. Press r to scan again.")
	}

	body = lipgloss.NewStyle().Height(m.paneHeight()).MaxHeight(m.paneHeight()).Render(body)
	return lipgloss.JoinVertical(lipgloss.Left, m.statusBar.View(), body, m.help.View(m.keys))
}
