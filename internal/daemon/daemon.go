// Package daemon runs the scanner headless and publishes its sessions over
// the HTTP/websocket API.
package daemon

import (
	"context"
	"errors"
	"image"
	"log"
	"sync"
	"time"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/scanner"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/session"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/ws"
)

// surfaceBounds is the virtual viewport of the headless surface.
var surfaceBounds = image.Rect(0, 0, 1280, 720)

type Options struct {
	// Continuous starts a new session after every delivered result.
	Continuous bool
	// AutoStart begins scanning as soon as the device is attached.
	AutoStart bool
	Logger    *log.Logger
	// Controller options appended after the daemon's own.
	ScannerOptions []scanner.Option
}

// Daemon owns a scanner.Controller and a headless surface. It implements
// ws.Scanner for the HTTP API.
type Daemon struct {
	ctrl        *scanner.Controller
	surface     *scanner.HeadlessSurface
	store       *session.Store
	broadcaster *ws.Broadcaster
	opts        Options
	logger      *log.Logger

	mu        sync.Mutex
	ctx       context.Context
	handle    *scanner.Handle
	available bool
}

func New(sess *capture.Session, devices *capture.Registry, decoder capture.Decoder, store *session.Store, broadcaster *ws.Broadcaster, opts Options) *Daemon {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	d := &Daemon{
		surface:     scanner.NewHeadlessSurface(surfaceBounds),
		store:       store,
		broadcaster: broadcaster,
		opts:        opts,
		logger:      logger,
		ctx:         context.Background(),
	}

	scannerOpts := append([]scanner.Option{
		scanner.WithLogger(logger),
		scanner.WithFeedback(scanner.LogFeedback{Logger: logger}),
		scanner.WithStateObserver(d.onState),
	}, opts.ScannerOptions...)
	d.ctrl = scanner.New(sess, devices, decoder, scannerOpts...)
	d.ctrl.Register(d)
	return d
}

// Run attaches the device and blocks until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	d.ctrl.SetUp(ctx)
	st, err := d.ctrl.Status(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.available = st.Configured
	d.mu.Unlock()

	if st.Configured {
		d.logger.Printf("Scanner ready on %s", st.Device)
		if d.opts.AutoStart {
			if _, err := d.StartSession(); err != nil {
				d.logger.Printf("auto start failed: %v", err)
			}
		}
	}

	<-ctx.Done()
	d.ctrl.Close()
	return nil
}

// StartSession implements ws.Scanner.
func (d *Daemon) StartSession() (*session.State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.available {
		return nil, ws.ErrUnavailable
	}
	if d.ctx.Err() != nil {
		return nil, scanner.ErrClosed
	}

	h := d.ctrl.RunSession(d.surface)
	d.handle = h
	go d.watch(h)

	return &session.State{
		ID:        h.ID(),
		Phase:     session.Starting,
		Armed:     true,
		StartedAt: time.Now(),
	}, nil
}

// StopSession implements ws.Scanner.
func (d *Daemon) StopSession() bool {
	d.mu.Lock()
	h := d.handle
	d.handle = nil
	d.mu.Unlock()

	if h == nil {
		return false
	}
	select {
	case <-h.Done():
		return false
	default:
	}
	h.Cancel()
	return true
}

// Surface exposes the headless surface for inspection.
func (d *Daemon) Surface() *scanner.HeadlessSurface { return d.surface }

func (d *Daemon) watch(h *scanner.Handle) {
	<-h.Done()
	result, err := h.Result()

	var devErr *scanner.DeviceError
	switch {
	case err == nil:
		d.broadcaster.BroadcastResult(h.ID(), result)
	case errors.As(err, &devErr):
		d.broadcaster.BroadcastError(h.ID(), devErr.Kind.String(), err.Error())
		return
	default:
		return
	}

	d.mu.Lock()
	if d.handle == h {
		d.handle = nil
	}
	restart := d.opts.Continuous && d.ctx.Err() == nil
	d.mu.Unlock()

	if restart {
		if _, err := d.StartSession(); err != nil {
			d.logger.Printf("continuous restart failed: %v", err)
		}
	}
}

func (d *Daemon) onState(st *session.State) {
	d.store.Update(st)
	d.broadcaster.QueueState(st)
}

// ShowError implements scanner.Delegate.
func (d *Daemon) ShowError(kind scanner.ErrorKind) {
	d.logger.Printf("scanner error: %s", kind)
	if kind == scanner.NoCamera {
		d.mu.Lock()
		d.available = false
		d.mu.Unlock()
		d.broadcaster.BroadcastError("", kind.String(), "no video capture device")
	}
}

// ShowQRCodeResult implements scanner.Delegate.
func (d *Daemon) ShowQRCodeResult(result string) {
	d.logger.Printf("QR code: %q", result)
}
