//go:build !gocv

package capture

import (
	"context"
	"errors"
	"fmt"
)

// ErrWebcamUnsupported is returned when the binary was built without OpenCV.
var ErrWebcamUnsupported = errors.New("webcam support requires building with -tags gocv")

// WebcamDevice is a placeholder for builds without the gocv tag. It is
// listed like any other device but can never be opened.
type WebcamDevice struct {
	index int
}

func NewWebcamDevice(index int) *WebcamDevice {
	return &WebcamDevice{index: index}
}

func (d *WebcamDevice) ID() string       { return fmt.Sprintf("webcam:%d", d.index) }
func (d *WebcamDevice) Name() string     { return fmt.Sprintf("webcam %d", d.index) }
func (d *WebcamDevice) Type() DeviceType { return DeviceWebcam }

func (d *WebcamDevice) Open(ctx context.Context) (FrameReader, error) {
	return nil, ErrWebcamUnsupported
}
