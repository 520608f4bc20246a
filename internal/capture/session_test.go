package capture

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"testing"
	"time"
)

// scriptedReader returns frames from a channel and io.EOF once it closes.
type scriptedReader struct {
	frames chan image.Image
	errs   chan error
	closed bool
}

func newScriptedReader() *scriptedReader {
	return &scriptedReader{frames: make(chan image.Image), errs: make(chan error)}
}

func (r *scriptedReader) ReadFrame(ctx context.Context) (image.Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-r.errs:
		return nil, err
	case img, ok := <-r.frames:
		if !ok {
			return nil, io.EOF
		}
		return img, nil
	}
}

func (r *scriptedReader) Close() error {
	r.closed = true
	return nil
}

type scriptedDevice struct {
	reader  *scriptedReader
	openErr error
}

func (d *scriptedDevice) ID() string       { return "scripted" }
func (d *scriptedDevice) Name() string     { return "Scripted" }
func (d *scriptedDevice) Type() DeviceType { return DeviceVirtual }

func (d *scriptedDevice) Open(ctx context.Context) (FrameReader, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.reader, nil
}

type countingOutput struct {
	mu      sync.Mutex
	frames  int
	lastRun uint64
}

func (o *countingOutput) ConsumeFrame(_ image.Image, run uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames++
	o.lastRun = run
}

func (o *countingOutput) run() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastRun
}

func (o *countingOutput) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.frames
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newInput(t *testing.T) (*DeviceInput, *scriptedReader) {
	t.Helper()
	r := newScriptedReader()
	in, err := NewDeviceInput(context.Background(), &scriptedDevice{reader: r})
	if err != nil {
		t.Fatal(err)
	}
	return in, r
}

func TestNewDeviceInputOpenError(t *testing.T) {
	_, err := NewDeviceInput(context.Background(), &scriptedDevice{openErr: errors.New("busy")})
	if err == nil {
		t.Fatal("expected open error")
	}
	if _, err := NewDeviceInput(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil device")
	}
}

func TestSessionSingleInput(t *testing.T) {
	s := NewSession()
	in1, _ := newInput(t)
	in2, _ := newInput(t)

	if !s.CanAddInput(in1) {
		t.Fatal("first input rejected")
	}
	s.AddInput(in1)
	if s.CanAddInput(in2) {
		t.Error("second input accepted")
	}
	if s.CanAddInput(nil) {
		t.Error("nil input accepted")
	}

	out := &countingOutput{}
	if !s.CanAddOutput(out) {
		t.Fatal("output rejected")
	}
	s.AddOutput(out)
	if s.CanAddOutput(out) {
		t.Error("same output accepted twice")
	}
}

func TestSessionStartWithoutInput(t *testing.T) {
	s := NewSession()
	if run := s.StartRunning(); run != 0 {
		t.Errorf("StartRunning() = %d, want 0", run)
	}
	if s.IsRunning() {
		t.Error("session running without an input")
	}
	s.StopRunning()
}

func TestSessionDeliversFrames(t *testing.T) {
	s := NewSession()
	in, r := newInput(t)
	s.AddInput(in)
	out := &countingOutput{}
	s.AddOutput(out)
	preview := NewPreviewLayer(s)

	s.StartRunning()
	s.StartRunning()
	if !s.IsRunning() {
		t.Fatal("session not running")
	}

	frame := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := 0; i < 3; i++ {
		r.frames <- frame
	}
	waitFor(t, "three frames", func() bool { return out.count() == 3 })

	if got, seq := preview.LatestFrame(); got == nil || seq != 3 {
		t.Errorf("preview latest = %v, seq %d", got, seq)
	}
	if s.FrameCount() != 3 {
		t.Errorf("FrameCount() = %d, want 3", s.FrameCount())
	}

	s.StopRunning()
	if s.IsRunning() {
		t.Error("session running after stop")
	}
	s.StopRunning()
}

func TestSessionRunNumbers(t *testing.T) {
	s := NewSession()
	in, r := newInput(t)
	s.AddInput(in)
	out := &countingOutput{}
	s.AddOutput(out)
	frame := image.NewGray(image.Rect(0, 0, 2, 2))

	first := s.StartRunning()
	if first == 0 || s.Run() != first {
		t.Fatalf("first run = %d, Run() = %d", first, s.Run())
	}
	if again := s.StartRunning(); again != first {
		t.Errorf("restart while running = %d, want %d", again, first)
	}
	r.frames <- frame
	waitFor(t, "first frame", func() bool { return out.count() == 1 })
	if got := out.run(); got != first {
		t.Errorf("frame run = %d, want %d", got, first)
	}

	s.StopRunning()
	if s.Run() != 0 {
		t.Errorf("Run() after stop = %d, want 0", s.Run())
	}

	second := s.StartRunning()
	defer s.StopRunning()
	if second <= first {
		t.Fatalf("second run = %d, want > %d", second, first)
	}
	r.frames <- frame
	waitFor(t, "second frame", func() bool { return out.count() == 2 })
	if got := out.run(); got != second {
		t.Errorf("frame run = %d, want %d", got, second)
	}
}

func TestSessionStopsAtEOF(t *testing.T) {
	s := NewSession()
	in, r := newInput(t)
	s.AddInput(in)
	s.StartRunning()

	close(r.frames)
	waitFor(t, "session to stop", func() bool { return !s.IsRunning() })
	s.StopRunning()
}

func TestSessionRecordsReadFailures(t *testing.T) {
	s := NewSession()
	in, r := newInput(t)
	s.AddInput(in)
	s.StartRunning()
	defer s.StopRunning()

	r.errs <- errors.New("usb hiccup")
	waitFor(t, "failure recorded", func() bool {
		return s.Health().Snapshot(DefaultFailureThreshold).ConsecutiveFailures == 1
	})
	snap := s.Health().Snapshot(DefaultFailureThreshold)
	if snap.Status != StatusDegraded {
		t.Errorf("status = %s, want degraded", snap.Status)
	}
	if snap.LastError != "usb hiccup" {
		t.Errorf("last error = %q", snap.LastError)
	}
}

func TestSessionAcquire(t *testing.T) {
	s := NewSession()
	if err := s.Acquire("a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Acquire("a"); err != nil {
		t.Errorf("re-acquire by owner: %v", err)
	}
	if err := s.Acquire("b"); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("acquire by other = %v, want ErrSessionBusy", err)
	}
	s.Release("b")
	if s.Owner() != "a" {
		t.Errorf("non-owner release changed owner to %q", s.Owner())
	}
	s.Release("a")
	if err := s.Acquire("b"); err != nil {
		t.Errorf("acquire after release: %v", err)
	}
}

func TestPreviewDetach(t *testing.T) {
	s := NewSession()
	in, r := newInput(t)
	s.AddInput(in)
	p := NewPreviewLayer(s)
	p.SetFrame(image.Rect(0, 0, 80, 24))
	p.SetVideoGravity(GravityResizeAspectFill)

	s.StartRunning()
	defer s.StopRunning()
	r.frames <- image.NewGray(image.Rect(0, 0, 2, 2))
	waitFor(t, "preview frame", func() bool { _, seq := p.LatestFrame(); return seq == 1 })

	p.Detach()
	p.Detach()
	if !p.Detached() {
		t.Fatal("Detached() = false")
	}
	if img, _ := p.LatestFrame(); img != nil {
		t.Error("detached layer kept its frame")
	}
	r.frames <- image.NewGray(image.Rect(0, 0, 2, 2))
	waitFor(t, "second frame", func() bool { return s.FrameCount() == 2 })
	if _, seq := p.LatestFrame(); seq != 1 {
		t.Errorf("detached layer received frames: seq %d", seq)
	}
	if p.Frame() != image.Rect(0, 0, 80, 24) {
		t.Errorf("Frame() = %v", p.Frame())
	}
}
