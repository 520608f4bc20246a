package scanner

import (
	"image"
	"sync"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
)

// Surface is the host container the scanner draws into. The controller
// only calls it from its executor.
type Surface interface {
	Bounds() image.Rectangle
	AddLayer(layer *capture.PreviewLayer)
	RemoveLayer(layer *capture.PreviewLayer)
	AddWidget(w Widget)
	RemoveWidget(w Widget)
}

// Anchor is the surface point a widget is positioned against.
type Anchor int

const (
	AnchorCenter Anchor = iota
	AnchorTopLeft
)

// Placement positions a widget relative to its anchor, in surface units.
type Placement struct {
	Anchor  Anchor
	OffsetX int
	OffsetY int
	Width   int
	Height  int
}

// Rect resolves the placement inside bounds.
func (p Placement) Rect(bounds image.Rectangle) image.Rectangle {
	var min image.Point
	switch p.Anchor {
	case AnchorCenter:
		c := image.Pt((bounds.Min.X+bounds.Max.X)/2, (bounds.Min.Y+bounds.Max.Y)/2)
		min = image.Pt(c.X-p.Width/2+p.OffsetX, c.Y-p.Height/2+p.OffsetY)
	default:
		min = bounds.Min.Add(image.Pt(p.OffsetX, p.OffsetY))
	}
	return image.Rectangle{Min: min, Max: min.Add(image.Pt(p.Width, p.Height))}.Intersect(bounds)
}

// Widget is an overlay element shown above the preview.
type Widget interface {
	Placement() Placement
}

// FocusFrame is the viewfinder square centred on the surface.
type FocusFrame struct {
	placement Placement
}

func NewFocusFrame(size int) *FocusFrame {
	return &FocusFrame{placement: Placement{Anchor: AnchorCenter, Width: size, Height: size}}
}

func (f *FocusFrame) Placement() Placement { return f.placement }

// CloseControl is the dismiss button. Activating it stops the session.
type CloseControl struct {
	placement Placement
	action    func()
}

func NewCloseControl(p Placement, action func()) *CloseControl {
	p.Anchor = AnchorTopLeft
	return &CloseControl{placement: p, action: action}
}

func (c *CloseControl) Placement() Placement { return c.placement }

// Activate runs the close action, as a tap on the control would.
func (c *CloseControl) Activate() {
	if c.action != nil {
		c.action()
	}
}

// HeadlessSurface is a Surface with no rendering. It records what is
// attached so servers and tests can inspect the overlay state.
type HeadlessSurface struct {
	bounds image.Rectangle

	mu      sync.Mutex
	layers  []*capture.PreviewLayer
	widgets []Widget
}

func NewHeadlessSurface(bounds image.Rectangle) *HeadlessSurface {
	return &HeadlessSurface{bounds: bounds}
}

func (s *HeadlessSurface) Bounds() image.Rectangle { return s.bounds }

func (s *HeadlessSurface) AddLayer(layer *capture.PreviewLayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = append(s.layers, layer)
}

func (s *HeadlessSurface) RemoveLayer(layer *capture.PreviewLayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.layers {
		if l == layer {
			s.layers = append(s.layers[:i], s.layers[i+1:]...)
			return
		}
	}
}

func (s *HeadlessSurface) AddWidget(w Widget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.widgets = append(s.widgets, w)
}

func (s *HeadlessSurface) RemoveWidget(w Widget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.widgets {
		if existing == w {
			s.widgets = append(s.widgets[:i], s.widgets[i+1:]...)
			return
		}
	}
}

// Layers returns a copy of the attached layers.
func (s *HeadlessSurface) Layers() []*capture.PreviewLayer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*capture.PreviewLayer(nil), s.layers...)
}

// Widgets returns a copy of the attached widgets.
func (s *HeadlessSurface) Widgets() []Widget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Widget(nil), s.widgets...)
}

// CloseControl returns the attached close control, if any.
func (s *HeadlessSurface) CloseControl() *CloseControl {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.widgets {
		if c, ok := w.(*CloseControl); ok {
			return c
		}
	}
	return nil
}
