// Package scanner runs QR scan sessions: it wires a capture device to a
// decoder, shows the viewfinder overlay on a host surface and reports the
// first decoded QR payload of each session exactly once.
//
// All session state lives on the controller's Executor. Public methods only
// enqueue work there, so none of them block on capture or decoding.
package scanner

import (
	"context"
	"errors"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/session"
)

// OverlayConfig sizes the viewfinder widgets in surface units.
type OverlayConfig struct {
	FocusSize  int
	CloseInset image.Point
	CloseSize  int
}

// DefaultOverlay matches a phone-sized surface in points.
var DefaultOverlay = OverlayConfig{
	FocusSize:  300,
	CloseInset: image.Pt(30, 50),
	CloseSize:  50,
}

// Option configures a Controller.
type Option func(*Controller)

// WithExecutor runs controller state on exec instead of a private MainQueue.
func WithExecutor(exec Executor) Option {
	return func(c *Controller) { c.exec = exec }
}

// WithAuthorizer decides camera access before each capture start.
func WithAuthorizer(a capture.Authorizer) Option {
	return func(c *Controller) { c.authorizer = a }
}

// WithFeedback is confirmed once per session, on its first accepted code.
func WithFeedback(f Feedback) Option {
	return func(c *Controller) { c.feedback = f }
}

// WithLogger replaces log.Default.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithOverlay sizes the focus frame and close control.
func WithOverlay(o OverlayConfig) Option {
	return func(c *Controller) { c.overlay = o }
}

// WithStateObserver receives a snapshot on every session phase change. It
// is called on the executor.
func WithStateObserver(fn func(*session.State)) Option {
	return func(c *Controller) { c.observer = fn }
}

type activeSession struct {
	handle      *Handle
	gen         uint64
	cancelStart context.CancelFunc
	state       *session.State
	// run is the capture run started for this session; 0 until then.
	run         atomic.Uint64
}

// Controller owns the scan session lifecycle for one capture session.
type Controller struct {
	session    *capture.Session
	devices    *capture.Registry
	decoder    capture.Decoder
	exec       Executor
	ownQueue   *MainQueue
	authorizer capture.Authorizer
	feedback   Feedback
	logger     *log.Logger
	overlay    OverlayConfig
	observer   func(*session.State)
	owner      string

	gate      *Gate
	delegates registry
	// liveRun is the capture run of the running session, 0 while none is.
	liveRun   atomic.Uint64

	setupMu   sync.Mutex
	setupDone bool
	input     *capture.DeviceInput
	output    *capture.MetadataOutput

	// Owned by the executor.
	configured   bool
	deviceName   string
	metadata     *capture.MetadataOutput
	active       *activeSession
	surface      Surface
	preview      *capture.PreviewLayer
	focus        *FocusFrame
	closeControl *CloseControl
	overlayShown bool
	closed       bool
}

// New creates a controller for the capture session. Devices are looked up
// in devices at SetUp time and frames are decoded by decoder.
func New(sess *capture.Session, devices *capture.Registry, decoder capture.Decoder, opts ...Option) *Controller {
	c := &Controller{
		session:  sess,
		devices:  devices,
		decoder:  decoder,
		feedback: nopFeedback{},
		logger:   log.Default(),
		overlay:  DefaultOverlay,
		owner:    "scanner-" + uuid.NewString(),
		gate:     NewGate(capture.SymbologyQR),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.exec == nil {
		q := NewMainQueue()
		q.Start()
		c.exec = q
		c.ownQueue = q
	}
	return c
}

// Register installs d as the delegate and returns a function that removes
// it again. Registering replaces any previous delegate.
func (c *Controller) Register(d Delegate) (unregister func()) {
	return c.delegates.set(d)
}

// SetUp attaches the default video device and a QR-only metadata output to
// the capture session. Failures are logged and reported to the delegate as
// NoCamera; SetUp itself never fails. Once it has succeeded further calls
// do nothing.
func (c *Controller) SetUp(ctx context.Context) {
	c.setupMu.Lock()
	defer c.setupMu.Unlock()
	if c.setupDone {
		return
	}

	device, ok := c.devices.Default()
	if !ok {
		c.failSetUp(errors.New("no video capture device"))
		return
	}

	input, err := capture.NewDeviceInput(ctx, device)
	if err != nil {
		c.failSetUp(err)
		return
	}
	if !c.session.CanAddInput(input) {
		input.Close()
		c.failSetUp(errors.New("capture session rejected the device input"))
		return
	}

	output := capture.NewMetadataOutput(c.decoder)
	if !c.session.CanAddOutput(output) {
		output.Close()
		input.Close()
		c.failSetUp(errors.New("capture session rejected the metadata output"))
		return
	}
	if err := output.SetObjectTypes([]capture.Symbology{capture.SymbologyQR}); err != nil {
		output.Close()
		input.Close()
		c.failSetUp(err)
		return
	}

	c.session.AddInput(input)
	c.session.AddOutput(output)
	output.SetObjectsDelegate(c)

	c.input = input
	c.output = output
	c.setupDone = true
	c.logger.Printf("scanner: using %s (%s)", device.Name(), device.Type())

	name := device.Name()
	c.exec.Dispatch(func() {
		c.configured = true
		c.deviceName = name
		c.metadata = output
	})
}

func (c *Controller) failSetUp(cause error) {
	err := &DeviceError{Kind: NoCamera, Cause: cause}
	c.logger.Printf("scanner: setup failed: %v", err)
	c.exec.Dispatch(func() { c.reportError(NoCamera) })
}

// RunSession starts a scan on surface and returns immediately. The preview
// layer is attached right away; the focus frame and close control appear
// once capture is running.
func (c *Controller) RunSession(surface Surface) *Handle {
	h := newHandle(uuid.NewString())
	h.cancel = func() {
		c.exec.Dispatch(func() { c.cancelHandle(h) })
	}
	if !c.exec.Dispatch(func() { c.begin(surface, h) }) {
		h.complete("", ErrClosed)
	}
	return h
}

// StopSession stops capture and removes the overlay. It is safe to call
// when nothing is running.
func (c *Controller) StopSession() {
	c.exec.Dispatch(func() {
		if a := c.teardown(); a != nil {
			c.finish(a, session.Stopped, "", ErrCanceled)
		}
	})
}

// Status is a point-in-time view of the controller.
type Status struct {
	Configured      bool
	Running         bool
	Armed           bool
	OverlayAttached bool
	SessionID       string
	Device          string
}

// Status reads the controller state on the executor.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.sync(ctx, func() {
		st = Status{
			Configured:      c.configured,
			Running:         c.session.IsRunning(),
			Armed:           c.gate.Armed(),
			OverlayAttached: c.preview != nil || c.overlayShown,
			Device:          c.deviceName,
		}
		if c.active != nil {
			st.SessionID = c.active.handle.ID()
		}
	})
	return st, err
}

// Close ends any session and releases the device. It must not be called
// from the executor.
func (c *Controller) Close() {
	c.sync(context.Background(), func() {
		if a := c.teardown(); a != nil {
			c.finish(a, session.Stopped, "", ErrClosed)
		}
		c.closed = true
	})

	c.setupMu.Lock()
	if c.output != nil {
		c.output.SetObjectsDelegate(nil)
		c.output.Close()
	}
	if c.input != nil {
		c.input.Close()
	}
	c.setupMu.Unlock()

	if c.ownQueue != nil {
		c.ownQueue.Close()
	}
}

// MetadataOutput receives detection events on the decoder goroutine. Only
// the first object of a frame is considered, and only if the frame was
// captured by the session that is running now.
func (c *Controller) MetadataOutput(out *capture.MetadataOutput, objects []capture.MetadataObject) {
	value, ok := c.gate.Accept(objects)
	if !ok {
		return
	}
	run := objects[0].Run
	if run == 0 || run != c.liveRun.Load() {
		return
	}
	gen := c.gate.Generation()
	if !c.gate.Armed() {
		return
	}
	if c.gate.TryConfirm(gen) {
		c.feedback.Confirm()
	}
	c.exec.Dispatch(func() { c.deliver(gen, run, value) })
}

func (c *Controller) begin(surface Surface, h *Handle) {
	if c.closed {
		h.complete("", ErrClosed)
		return
	}
	if !c.configured {
		h.complete("", ErrNotConfigured)
		return
	}
	if surface == nil {
		h.complete("", errors.New("nil surface"))
		return
	}

	if prev := c.teardown(); prev != nil {
		c.finish(prev, session.Stopped, "", ErrSuperseded)
	}

	if err := c.session.Acquire(c.owner); err != nil {
		c.logger.Printf("scanner: %v", err)
		h.complete("", err)
		return
	}

	gen := c.gate.Arm()
	startCtx, cancelStart := context.WithCancel(context.Background())
	a := &activeSession{
		handle:      h,
		gen:         gen,
		cancelStart: cancelStart,
		state: &session.State{
			ID:        h.ID(),
			Device:    c.deviceName,
			Phase:     session.Starting,
			Armed:     true,
			StartedAt: time.Now(),
		},
	}
	c.active = a
	c.addLayer(surface)
	c.publish(a)

	go c.startCapture(startCtx, a)
}

// startCapture runs off the executor: the permission prompt and the device
// start may both block.
func (c *Controller) startCapture(ctx context.Context, a *activeSession) {
	if !capture.Authorize(ctx, c.authorizer) {
		if ctx.Err() == nil {
			c.exec.Dispatch(func() { c.denied(a) })
		}
		return
	}
	if ctx.Err() != nil {
		return
	}
	a.run.Store(c.session.StartRunning())
	if !c.exec.Dispatch(func() { c.started(a) }) {
		// Closed while starting.
		if owner := c.session.Owner(); owner == c.owner || owner == "" {
			c.session.StopRunning()
		}
	}
}

func (c *Controller) started(a *activeSession) {
	if c.active != a {
		// Stopped or replaced while starting. Leave capture to whoever
		// holds the session now.
		if c.active == nil && c.session.Owner() == "" {
			c.session.StopRunning()
		}
		return
	}
	c.addViewFinder()
	c.liveRun.Store(a.run.Load())
	now := time.Now()
	a.state.Phase = session.Running
	a.state.RunningAt = &now
	a.state.OverlayAttached = true
	a.handle.markStarted()
	c.publish(a)
}

func (c *Controller) denied(a *activeSession) {
	if c.active != a || !c.gate.TryDeliver(a.gen) {
		return
	}
	c.teardown()
	err := &DeviceError{Kind: NoPermission, Cause: errors.New("camera access denied")}
	c.logger.Printf("scanner: %v", err)
	c.reportError(NoPermission)
	c.finish(a, session.Failed, "", err)
}

func (c *Controller) deliver(gen, run uint64, value string) {
	a := c.active
	if a == nil || a.gen != gen || a.run.Load() != run || a.state.Phase != session.Running {
		return
	}
	if !c.gate.TryDeliver(gen) {
		return
	}
	c.teardown()
	if d := c.delegates.get(); d != nil {
		d.ShowQRCodeResult(value)
	}
	c.finish(a, session.Delivered, value, nil)
}

func (c *Controller) cancelHandle(h *Handle) {
	if c.active == nil || c.active.handle != h {
		h.complete("", ErrCanceled)
		return
	}
	a := c.teardown()
	c.finish(a, session.Stopped, "", ErrCanceled)
}

// teardown stops capture, detaches the overlay and returns the session that
// was active, if any.
func (c *Controller) teardown() *activeSession {
	a := c.active
	c.active = nil
	c.liveRun.Store(0)
	if a != nil {
		a.cancelStart()
	}
	c.gate.Disarm()

	if owner := c.session.Owner(); owner == c.owner || owner == "" {
		c.session.StopRunning()
		if c.metadata != nil {
			c.metadata.Flush()
		}
	}
	c.removeLayer()
	c.session.Release(c.owner)
	return a
}

func (c *Controller) addLayer(surface Surface) {
	c.surface = surface
	bounds := surface.Bounds()

	if c.preview == nil {
		preview := capture.NewPreviewLayer(c.session)
		preview.SetVideoGravity(capture.GravityResizeAspectFill)
		preview.SetFrame(bounds)
		surface.AddLayer(preview)
		c.preview = preview

		c.focus = NewFocusFrame(c.overlay.FocusSize)
		c.closeControl = NewCloseControl(Placement{
			OffsetX: c.overlay.CloseInset.X,
			OffsetY: c.overlay.CloseInset.Y,
			Width:   c.overlay.CloseSize,
			Height:  c.overlay.CloseSize,
		}, c.StopSession)
	}
}

func (c *Controller) addViewFinder() {
	if c.surface == nil || c.focus == nil || c.overlayShown {
		return
	}
	c.surface.AddWidget(c.focus)
	if c.closeControl != nil {
		c.surface.AddWidget(c.closeControl)
	}
	c.overlayShown = true
}

func (c *Controller) removeLayer() {
	if c.surface != nil {
		if c.preview != nil {
			c.surface.RemoveLayer(c.preview)
		}
		if c.overlayShown {
			c.surface.RemoveWidget(c.focus)
			c.surface.RemoveWidget(c.closeControl)
		}
	}
	if c.preview != nil {
		c.preview.Detach()
	}
	c.preview = nil
	c.focus = nil
	c.closeControl = nil
	c.surface = nil
	c.overlayShown = false
}

func (c *Controller) reportError(kind ErrorKind) {
	if d := c.delegates.get(); d != nil {
		d.ShowError(kind)
	}
}

func (c *Controller) finish(a *activeSession, phase session.Phase, result string, err error) {
	now := time.Now()
	a.state.Phase = phase
	a.state.Armed = false
	a.state.OverlayAttached = false
	a.state.EndedAt = &now
	a.state.Result = result
	if err != nil {
		a.state.Error = err.Error()
	}
	c.publish(a)
	a.handle.complete(result, err)
}

func (c *Controller) publish(a *activeSession) {
	if c.observer != nil {
		c.observer(a.state.Clone())
	}
}

func (c *Controller) sync(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !c.exec.Dispatch(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
