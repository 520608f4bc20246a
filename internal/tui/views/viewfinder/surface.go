package viewfinder

import (
	"image"
	"sync"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/scanner"
)

// Surface is a scanner.Surface measured in terminal cells. The controller
// mutates it from its executor while the Bubble Tea loop reads Scene, so
// every access goes through mu.
type Surface struct {
	mu     sync.Mutex
	bounds image.Rectangle
	layers []*capture.PreviewLayer
	focus  *scanner.FocusFrame
	close  *scanner.CloseControl
}

func NewSurface(width, height int) *Surface {
	return &Surface{bounds: image.Rect(0, 0, width, height)}
}

// Resize changes the surface bounds and refits attached layers.
func (s *Surface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bounds = image.Rect(0, 0, width, height)
	for _, l := range s.layers {
		l.SetFrame(s.bounds)
	}
}

func (s *Surface) Bounds() image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bounds
}

func (s *Surface) AddLayer(layer *capture.PreviewLayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = append(s.layers, layer)
}

func (s *Surface) RemoveLayer(layer *capture.PreviewLayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.layers {
		if l == layer {
			s.layers = append(s.layers[:i], s.layers[i+1:]...)
			return
		}
	}
}

func (s *Surface) AddWidget(w scanner.Widget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch w := w.(type) {
	case *scanner.FocusFrame:
		s.focus = w
	case *scanner.CloseControl:
		s.close = w
	}
}

func (s *Surface) RemoveWidget(w scanner.Widget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch w := w.(type) {
	case *scanner.FocusFrame:
		if s.focus == w {
			s.focus = nil
		}
	case *scanner.CloseControl:
		if s.close == w {
			s.close = nil
		}
	}
}

// CloseControl returns the attached close control, or nil.
func (s *Surface) CloseControl() *scanner.CloseControl {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.close
}

// Scene captures what should be drawn right now.
func (s *Surface) Scene() Scene {
	s.mu.Lock()
	defer s.mu.Unlock()

	scene := Scene{Size: s.bounds.Size()}
	if n := len(s.layers); n > 0 {
		top := s.layers[n-1]
		scene.Preview = true
		scene.Frame, scene.Seq = top.LatestFrame()
		scene.Gravity = top.VideoGravity()
	}
	if s.focus != nil {
		scene.Focus = s.focus.Placement().Rect(s.bounds)
	}
	if s.close != nil {
		scene.Close = s.close.Placement().Rect(s.bounds)
	}
	return scene
}
