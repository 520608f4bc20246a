// Package mock provides a virtual camera that films a scripted sequence of
// QR codes. Importing it registers the "mock:" device scheme.
package mock

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/decode"
)

const (
	frameSize   = 320
	codeSize    = 200
	defaultRate = 15
)

// Scene patterns. Each scene shows one payload for sceneSeconds.
const (
	PatternSteady  = "steady"  // code visible after a short lead-in
	PatternFlicker = "flicker" // code visible on every other frame
	PatternLate    = "late"    // code appears for the last third only
)

var patterns = []string{PatternSteady, PatternFlicker, PatternLate}

const sceneSeconds = 2

func init() {
	capture.RegisterScheme("mock", func(rest string, opts capture.DeviceOptions) (capture.Device, error) {
		var payloads []string
		for _, p := range strings.Split(rest, ",") {
			if p = strings.TrimSpace(p); p != "" {
				payloads = append(payloads, p)
			}
		}
		return NewDevice(payloads, opts.FrameRate, opts.Loop), nil
	})
}

type scene struct {
	payload string
	pattern string
	code    image.Image
}

// Device is a virtual capture device. With no payloads it films an empty
// scene forever.
type Device struct {
	payloads  []string
	frameRate int
	loop      bool
}

func NewDevice(payloads []string, frameRate int, loop bool) *Device {
	if frameRate <= 0 {
		frameRate = defaultRate
	}
	return &Device{payloads: payloads, frameRate: frameRate, loop: loop}
}

func (d *Device) ID() string               { return "mock:" + strings.Join(d.payloads, ",") }
func (d *Device) Name() string             { return "Mock camera" }
func (d *Device) Type() capture.DeviceType { return capture.DeviceVirtual }

// Open renders every scene's code up front so frame reads only composite.
func (d *Device) Open(ctx context.Context) (capture.FrameReader, error) {
	scenes := make([]scene, 0, len(d.payloads))
	for i, p := range d.payloads {
		code, err := decode.EncodeQR(p, codeSize)
		if err != nil {
			return nil, fmt.Errorf("render mock payload %q: %w", p, err)
		}
		scenes = append(scenes, scene{payload: p, pattern: patterns[i%len(patterns)], code: code})
	}
	return &reader{
		scenes:   scenes,
		interval: time.Second / time.Duration(d.frameRate),
		perScene: d.frameRate * sceneSeconds,
		loop:     d.loop,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

type reader struct {
	scenes   []scene
	interval time.Duration
	perScene int
	loop     bool

	mu     sync.Mutex
	rng    *rand.Rand
	tick   int
	next   time.Time
	closed bool
}

func (r *reader) ReadFrame(ctx context.Context) (image.Image, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, io.EOF
	}
	now := time.Now()
	if r.next.IsZero() {
		r.next = now
	}
	wait := r.next.Sub(now)
	r.next = r.next.Add(r.interval)
	tick := r.tick
	r.tick++
	r.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	if len(r.scenes) == 0 {
		return r.blank(), nil
	}
	idx := tick / r.perScene
	if idx >= len(r.scenes) {
		if !r.loop {
			return nil, io.EOF
		}
		idx %= len(r.scenes)
	}
	sc := r.scenes[idx]
	if visible(sc.pattern, tick%r.perScene, r.perScene) {
		return r.compose(sc.code), nil
	}
	return r.blank(), nil
}

// visible reports whether the code is in view on frame n of a scene.
func visible(pattern string, n, total int) bool {
	switch pattern {
	case PatternFlicker:
		return n%2 == 1
	case PatternLate:
		return n >= total*2/3
	default:
		return n >= 3
	}
}

func (r *reader) blank() image.Image {
	img := image.NewGray(image.Rect(0, 0, frameSize, frameSize))
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range img.Pix {
		img.Pix[i] = uint8(200 + r.rng.Intn(40))
	}
	return img
}

func (r *reader) compose(code image.Image) image.Image {
	img := image.NewGray(image.Rect(0, 0, frameSize, frameSize))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Gray{Y: 230}), image.Point{}, draw.Src)
	off := (frameSize - codeSize) / 2
	draw.Draw(img, code.Bounds().Add(image.Pt(off, off)), code, code.Bounds().Min, draw.Src)
	return img
}

func (r *reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
