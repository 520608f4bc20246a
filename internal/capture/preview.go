package capture

import (
	"image"
	"sync"
)

// VideoGravity controls how frames are fitted into the layer bounds.
type VideoGravity int

const (
	GravityResizeAspect VideoGravity = iota
	GravityResizeAspectFill
	GravityResize
)

// PreviewLayer exposes the live frames of a Session to a host surface. The
// host decides how to draw LatestFrame; the layer only tracks geometry and
// the most recent frame.
type PreviewLayer struct {
	session *Session

	mu      sync.RWMutex
	gravity VideoGravity
	frame   image.Rectangle
	latest  image.Image
	seq     uint64
	removed bool
}

// NewPreviewLayer creates a layer fed by session.
func NewPreviewLayer(session *Session) *PreviewLayer {
	p := &PreviewLayer{session: session}
	if session != nil {
		session.addPreview(p)
	}
	return p
}

func (p *PreviewLayer) SetVideoGravity(g VideoGravity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gravity = g
}

func (p *PreviewLayer) VideoGravity() VideoGravity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gravity
}

// SetFrame sets the layer bounds in host surface coordinates.
func (p *PreviewLayer) SetFrame(r image.Rectangle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frame = r
}

func (p *PreviewLayer) Frame() image.Rectangle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frame
}

// LatestFrame returns the most recent frame and its sequence number. The
// sequence is zero until the first frame arrives.
func (p *PreviewLayer) LatestFrame() (image.Image, uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.seq
}

func (p *PreviewLayer) ConsumeFrame(img image.Image) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removed {
		return
	}
	p.latest = img
	p.seq++
}

// Detach disconnects the layer from its session and drops the last frame.
func (p *PreviewLayer) Detach() {
	p.mu.Lock()
	if p.removed {
		p.mu.Unlock()
		return
	}
	p.removed = true
	p.latest = nil
	p.mu.Unlock()

	if p.session != nil {
		p.session.removePreview(p)
	}
}

// Detached reports whether Detach has been called.
func (p *PreviewLayer) Detached() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.removed
}
