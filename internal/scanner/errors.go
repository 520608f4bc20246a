package scanner

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind classifies a scanning failure reported to the delegate.
type ErrorKind int

const (
	// NoCamera means no usable capture device, or the device could not be
	// attached as an input.
	NoCamera ErrorKind = iota + 1
	// NoPermission means camera access was denied or restricted.
	NoPermission
)

func (k ErrorKind) String() string {
	switch k {
	case NoCamera:
		return "no_camera"
	case NoPermission:
		return "no_permission"
	default:
		return "unknown"
	}
}

func (k ErrorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// DeviceError is a device or configuration failure.
type DeviceError struct {
	Kind  ErrorKind
	Cause error
}

func (e *DeviceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return e.Kind.String()
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *DeviceError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DeviceError of the same kind.
func (e *DeviceError) Is(target error) bool {
	if t, ok := target.(*DeviceError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// ErrNoPermission matches, with errors.Is, the error of a session whose
// camera access was refused.
var ErrNoPermission = &DeviceError{Kind: NoPermission}

// Handle completion errors.
var (
	// ErrCanceled completes a handle stopped before a result arrived.
	ErrCanceled = errors.New("scan session canceled")
	// ErrNotConfigured completes a handle when SetUp never succeeded.
	ErrNotConfigured = errors.New("scanner not configured")
	// ErrSuperseded completes a handle replaced by a newer RunSession.
	ErrSuperseded = errors.New("scan session superseded")
	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("scanner closed")
)
