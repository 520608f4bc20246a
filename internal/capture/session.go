package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSessionBusy is returned by Acquire while another owner holds the session.
var ErrSessionBusy = errors.New("capture session busy")

// retryDelay paces frame reads after a failed read.
const retryDelay = 200 * time.Millisecond

// DeviceInput is an opened device attached (or attachable) to a Session.
type DeviceInput struct {
	device Device
	reader FrameReader
}

// NewDeviceInput opens the device for capture.
func NewDeviceInput(ctx context.Context, device Device) (*DeviceInput, error) {
	if device == nil {
		return nil, fmt.Errorf("no capture device")
	}
	reader, err := device.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device.ID(), err)
	}
	return &DeviceInput{device: device, reader: reader}, nil
}

func (in *DeviceInput) Device() Device { return in.device }

// Close releases the underlying device.
func (in *DeviceInput) Close() error { return in.reader.Close() }

// Output receives every frame the session captures, tagged with the run
// that captured it. ConsumeFrame is called on the session's capture
// goroutine and must not block.
type Output interface {
	ConsumeFrame(img image.Image, run uint64)
}

// Session coordinates one device input with any number of outputs. There
// is one Session per capture pipeline; owners take it with Acquire so only
// one scan runs against it at a time.
type Session struct {
	mu       sync.Mutex
	inputs   []*DeviceInput
	outputs  []Output
	previews []*PreviewLayer
	owner    string

	running bool
	run     uint64
	runs    uint64
	cancel  context.CancelFunc
	done    chan struct{}

	health *Health
	frames atomic.Uint64
}

func NewSession() *Session {
	return &Session{health: NewHealth()}
}

// Acquire claims the session for owner. Re-acquiring by the same owner is
// a no-op.
func (s *Session) Acquire(owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != "" && s.owner != owner {
		return fmt.Errorf("%w: held by %s", ErrSessionBusy, s.owner)
	}
	s.owner = owner
	return nil
}

// Release gives the session back. Releasing on behalf of a non-owner does
// nothing.
func (s *Session) Release(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == owner {
		s.owner = ""
	}
}

// Owner returns the current owner or "".
func (s *Session) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// CanAddInput reports whether in can be attached. A session holds a single
// video input.
func (s *Session) CanAddInput(in *DeviceInput) bool {
	if in == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs) == 0
}

func (s *Session) AddInput(in *DeviceInput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, in)
}

// CanAddOutput reports whether out can be attached.
func (s *Session) CanAddOutput(out Output) bool {
	if out == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.outputs {
		if o == out {
			return false
		}
	}
	return true
}

func (s *Session) AddOutput(out Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = append(s.outputs, out)
}

// Inputs returns a copy of the attached inputs.
func (s *Session) Inputs() []*DeviceInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*DeviceInput(nil), s.inputs...)
}

// Outputs returns a copy of the attached outputs.
func (s *Session) Outputs() []Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Output(nil), s.outputs...)
}

func (s *Session) addPreview(p *PreviewLayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previews = append(s.previews, p)
}

func (s *Session) removePreview(p *PreviewLayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.previews {
		if existing == p {
			s.previews = append(s.previews[:i], s.previews[i+1:]...)
			return
		}
	}
}

// StartRunning starts delivering frames from the input to the outputs and
// returns the run number stamped on them. Every start gets a new number;
// calling it on a running session returns the current one. Without an
// input it does nothing and returns 0.
func (s *Session) StartRunning() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return s.run
	}
	if len(s.inputs) == 0 {
		return 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.runs++
	s.run = s.runs
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.pump(ctx, s.inputs[0].reader, s.done, s.run)
	return s.run
}

// StopRunning stops frame delivery and waits for the capture goroutine to
// exit. It is safe to call on a stopped session.
func (s *Session) StopRunning() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.running = false
	s.run = 0
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// IsRunning reports whether frames are being captured.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run returns the number of the current capture run, or 0 when stopped.
func (s *Session) Run() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

// FrameCount returns the number of frames captured since creation.
func (s *Session) FrameCount() uint64 {
	return s.frames.Load()
}

// Health returns the device health tracker.
func (s *Session) Health() *Health {
	return s.health
}

func (s *Session) pump(ctx context.Context, reader FrameReader, done chan struct{}, run uint64) {
	defer close(done)
	for {
		img, err := reader.ReadFrame(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, io.EOF) {
			s.mu.Lock()
			var cancel context.CancelFunc
			if s.done == done {
				cancel = s.cancel
				s.running = false
				s.run = 0
				s.cancel = nil
				s.done = nil
			}
			s.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			return
		}
		if err != nil {
			s.health.RecordFailure(err)
			log.Printf("capture read error: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}
		s.health.RecordSuccess()
		s.frames.Add(1)

		s.mu.Lock()
		outputs := append([]Output(nil), s.outputs...)
		previews := append([]*PreviewLayer(nil), s.previews...)
		s.mu.Unlock()

		for _, p := range previews {
			p.ConsumeFrame(img)
		}
		for _, o := range outputs {
			o.ConsumeFrame(img, run)
		}
	}
}
