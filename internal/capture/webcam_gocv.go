//go:build gocv

package capture

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// WebcamDevice reads frames from a local camera through OpenCV.
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
	webcam, err := gocv.OpenVideoCapture(d.index)
	if err != nil {
		return nil, fmt.Errorf("failed to OpenVideoCapture: %w", err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return nil, fmt.Errorf("webcam %d is not available", d.index)
	}
	return &webcamReader{cam: webcam, mat: gocv.NewMat()}, nil
}

type webcamReader struct {
	cam *gocv.VideoCapture
	mat gocv.Mat
}

// ReadFrame blocks on the camera itself; OpenCV paces it to the device
// frame rate.
func (r *webcamReader) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := r.cam.Read(&r.mat); !ok {
		return nil, fmt.Errorf("webcam read failed")
	}
	if r.mat.Empty() {
		return nil, fmt.Errorf("webcam returned an empty frame")
	}
	img, err := r.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to get image object: %w", err)
	}
	return img, nil
}

func (r *webcamReader) Close() error {
	r.mat.Close()
	return r.cam.Close()
}
