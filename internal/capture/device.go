package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// DeviceType classifies where a device gets its frames from.
type DeviceType int

const (
	DeviceDirectory DeviceType = iota
	DeviceRemote
	DeviceWebcam
	DeviceVirtual
)

func (t DeviceType) String() string {
	switch t {
	case DeviceDirectory:
		return "directory"
	case DeviceRemote:
		return "remote"
	case DeviceWebcam:
		return "webcam"
	case DeviceVirtual:
		return "virtual"
	default:
		return "unknown"
	}
}

// Device is a video capture device. Opening it yields a FrameReader, the
// equivalent of attaching the device as a session input.
type Device interface {
	// ID is a stable identifier, usually the device spec it was parsed from.
	ID() string
	Name() string
	Type() DeviceType
	// Open acquires the device. It fails when the device exists but
	// cannot be used as an input (missing directory, webcam busy).
	Open(ctx context.Context) (FrameReader, error)
}

// FrameReader yields video frames. ReadFrame blocks until the next frame is
// due and returns io.EOF once the stream is exhausted.
type FrameReader interface {
	ReadFrame(ctx context.Context) (image.Image, error)
	Close() error
}

// ErrUnknownDevice is returned by ParseDevice for unsupported device specs.
var ErrUnknownDevice = errors.New("unknown capture device")

// Registry tracks the capture devices known to the process. The first
// registered device is the default one unless SetDefault says otherwise.
type Registry struct {
	mu        sync.RWMutex
	devices   []Device
	defaultID string
}

func NewRegistry(devices ...Device) *Registry {
	r := &Registry{}
	for _, d := range devices {
		r.Register(d)
	}
	return r
}

// Register adds a device. Registering an ID twice replaces the old entry.
func (r *Registry) Register(d Device) {
	if d == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.devices {
		if existing.ID() == d.ID() {
			r.devices[i] = d
			return
		}
	}
	r.devices = append(r.devices, d)
}

// SetDefault marks the device with the given ID as the default.
func (r *Registry) SetDefault(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultID = id
}

// Default returns the default video device, if any.
func (r *Registry) Default() (Device, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.devices) == 0 {
		return nil, false
	}
	for _, d := range r.devices {
		if d.ID() == r.defaultID {
			return d, true
		}
	}
	return r.devices[0], true
}

// Devices returns a copy of the registered devices.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// DeviceOptions carries the knobs shared by the built-in devices.
type DeviceOptions struct {
	FrameRate int
	Loop      bool
	Token     string
}

// ParseDevice builds a device from a spec string:
//
//	dir:<path>        replay images from a directory
//	ws://host/path    frames pushed by a remote camera over a websocket
//	webcam:<index>    local webcam (requires the gocv build tag)
//
// Other prefixes are looked up in the schemes added with RegisterScheme.
func ParseDevice(spec string, opts DeviceOptions) (Device, error) {
	switch {
	case strings.HasPrefix(spec, "dir:"):
		return NewDirDevice(strings.TrimPrefix(spec, "dir:"), opts.FrameRate, opts.Loop), nil
	case strings.HasPrefix(spec, "ws://"), strings.HasPrefix(spec, "wss://"):
		if _, err := url.Parse(spec); err != nil {
			return nil, fmt.Errorf("parse remote device url: %w", err)
		}
		return NewRemoteDevice(spec, opts.Token), nil
	case strings.HasPrefix(spec, "webcam:"):
		idx, err := strconv.Atoi(strings.TrimPrefix(spec, "webcam:"))
		if err != nil {
			return nil, fmt.Errorf("parse webcam index %q: %w", spec, err)
		}
		return NewWebcamDevice(idx), nil
	}
	if name, rest, ok := strings.Cut(spec, ":"); ok {
		schemesMu.RLock()
		fn := schemes[name]
		schemesMu.RUnlock()
		if fn != nil {
			return fn(rest, opts)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, spec)
}

// SchemeFunc builds a device from the part of a spec after "<scheme>:".
type SchemeFunc func(rest string, opts DeviceOptions) (Device, error)

var (
	schemesMu sync.RWMutex
	schemes   = make(map[string]SchemeFunc)
)

// RegisterScheme makes ParseDevice accept "<scheme>:..." specs. It is
// meant to be called from init; registering a scheme twice panics.
func RegisterScheme(scheme string, fn SchemeFunc) {
	schemesMu.Lock()
	defer schemesMu.Unlock()
	if _, dup := schemes[scheme]; dup {
		panic("capture: RegisterScheme called twice for " + scheme)
	}
	schemes[scheme] = fn
}
