package scanner

import (
	"context"
	"errors"
	"image"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
)

type stubDevice struct {
	openErr error
}

func (d *stubDevice) ID() string               { return "stub:0" }
func (d *stubDevice) Name() string             { return "Stub camera" }
func (d *stubDevice) Type() capture.DeviceType { return capture.DeviceVirtual }

func (d *stubDevice) Open(ctx context.Context) (capture.FrameReader, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return idleReader{}, nil
}

// idleReader never produces a frame; tests inject detections directly.
type idleReader struct{}

func (idleReader) ReadFrame(ctx context.Context) (image.Image, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (idleReader) Close() error { return nil }

type stubDecoder struct{}

func (stubDecoder) Decode(image.Image) ([]capture.MetadataObject, error) { return nil, nil }

func (stubDecoder) Symbologies() []capture.Symbology {
	return []capture.Symbology{capture.SymbologyQR, capture.SymbologyEAN13}
}

type recordingDelegate struct {
	mu      sync.Mutex
	errors  []ErrorKind
	results []string
}

func (d *recordingDelegate) ShowError(kind ErrorKind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors = append(d.errors, kind)
}

func (d *recordingDelegate) ShowQRCodeResult(result string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, result)
}

func (d *recordingDelegate) Errors() []ErrorKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ErrorKind(nil), d.errors...)
}

func (d *recordingDelegate) Results() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.results...)
}

type fixture struct {
	ctrl     *Controller
	session  *capture.Session
	delegate *recordingDelegate
	confirms *atomic.Int32
}

func newFixture(t *testing.T, devices *capture.Registry, opts ...Option) *fixture {
	t.Helper()
	return newDecoderFixture(t, devices, stubDecoder{}, opts...)
}

func newDecoderFixture(t *testing.T, devices *capture.Registry, dec capture.Decoder, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		session:  capture.NewSession(),
		delegate: &recordingDelegate{},
		confirms: &atomic.Int32{},
	}
	opts = append([]Option{
		WithLogger(log.New(io.Discard, "", 0)),
		WithFeedback(FeedbackFunc(func() { f.confirms.Add(1) })),
	}, opts...)
	f.ctrl = New(f.session, devices, dec, opts...)
	f.ctrl.Register(f.delegate)
	t.Cleanup(f.ctrl.Close)
	return f
}

// newReadyFixture returns a fixture whose controller has a device attached.
func newReadyFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := newFixture(t, capture.NewRegistry(&stubDevice{}), opts...)
	f.ctrl.SetUp(context.Background())
	f.flush(t)
	return f
}

// flush waits for everything queued on the executor so far.
func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.ctrl.sync(ctx, func() {}); err != nil {
		t.Fatalf("executor sync: %v", err)
	}
}

func newSurface() *HeadlessSurface {
	return NewHeadlessSurface(image.Rect(0, 0, 390, 844))
}

func qr(value string) []capture.MetadataObject {
	return []capture.MetadataObject{{Type: capture.SymbologyQR, StringValue: value}}
}

// qr returns a detection as the metadata output would report it for the
// current capture run.
func (f *fixture) qr(value string) []capture.MetadataObject {
	return f.stamp(qr(value))
}

func (f *fixture) stamp(objects []capture.MetadataObject) []capture.MetadataObject {
	run := f.session.Run()
	out := make([]capture.MetadataObject, len(objects))
	for i, obj := range objects {
		obj.Run = run
		out[i] = obj
	}
	return out
}

// frameDevice films a blank frame every few milliseconds.
type frameDevice struct{}

func (frameDevice) ID() string               { return "frames:0" }
func (frameDevice) Name() string             { return "Frame camera" }
func (frameDevice) Type() capture.DeviceType { return capture.DeviceVirtual }

func (frameDevice) Open(ctx context.Context) (capture.FrameReader, error) {
	return frameReader{}, nil
}

type frameReader struct{}

func (frameReader) ReadFrame(ctx context.Context) (image.Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(2 * time.Millisecond):
		return image.NewGray(image.Rect(0, 0, 2, 2)), nil
	}
}

func (frameReader) Close() error { return nil }

// heldDecoder blocks its first decode until release is closed and reports
// "stale" for it; every later frame decodes to "fresh".
type heldDecoder struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (d *heldDecoder) Decode(image.Image) ([]capture.MetadataObject, error) {
	if d.calls.Add(1) == 1 {
		close(d.entered)
		<-d.release
		return qr("stale"), nil
	}
	return qr("fresh"), nil
}

func (d *heldDecoder) Symbologies() []capture.Symbology {
	return []capture.Symbology{capture.SymbologyQR}
}

// gatedAuthorizer grants access at once until hold is set; after that it
// waits for an answer.
type gatedAuthorizer struct {
	hold   atomic.Bool
	asked  chan struct{}
	answer chan bool
}

func (a *gatedAuthorizer) AuthorizationStatus() capture.AuthorizationStatus {
	return capture.NotDetermined
}

func (a *gatedAuthorizer) RequestAccess(ctx context.Context) bool {
	if !a.hold.Load() {
		return true
	}
	close(a.asked)
	select {
	case ok := <-a.answer:
		return ok
	case <-ctx.Done():
		return false
	}
}

func waitClosed(t *testing.T, what string, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func waitStarted(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Started():
	case <-h.Done():
		_, err := h.Result()
		t.Fatalf("session ended before starting: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session start")
	}
}

func waitDone(t *testing.T, h *Handle) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := h.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("timed out waiting for session to complete")
	}
	return result, err
}
