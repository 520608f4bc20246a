// Package viewfinder draws the camera preview and scan overlay as text.
//
// Frames are scaled into a grayscale cell grid with golang.org/x/image/draw
// and mapped onto a luminance ramp. Terminal cells are roughly twice as tall
// as they are wide, so fitting is computed in a virtual space with two
// pixel rows per cell.
package viewfinder

import (
	"image"
	"strings"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/image/draw"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/tui/theme"
)

// FPS is the redraw rate used for preview and focus animation.
const FPS = 20

const ramp = " .:-=+*#%@"

// Scene is a snapshot of everything attached to a Surface.
type Scene struct {
	Size    image.Point
	Preview bool
	Frame   image.Image
	Seq     uint64
	Gravity capture.VideoGravity
	Focus   image.Rectangle
	Close   image.Rectangle
}

// flashFrames is how long a confirmation keeps the focus frame lit.
const flashFrames = FPS / 2

// Model animates the focus frame.
type Model struct {
	spring   harmonica.Spring
	pulse    float64
	velocity float64
	target   float64
	flash    int
}

func New() Model {
	return Model{
		spring: harmonica.NewSpring(harmonica.FPS(FPS), 4.0, 0.6),
		target: 1,
	}
}

// Flash lights the focus frame in the confirmation color for a moment.
func (m *Model) Flash() { m.flash = flashFrames }

// Flashing reports whether a confirmation flash is showing.
func (m Model) Flashing() bool { return m.flash > 0 }

// Tick advances the focus pulse by one frame.
func (m *Model) Tick() {
	if m.flash > 0 {
		m.flash--
	}
	m.pulse, m.velocity = m.spring.Update(m.pulse, m.velocity, m.target)
	if abs(m.pulse-m.target) < 0.05 && abs(m.velocity) < 0.1 {
		m.target = 1 - m.target
	}
}

// Pulse is the current focus brightness, roughly in [0, 1].
func (m Model) Pulse() float64 { return m.pulse }

type cellKind uint8

const (
	cellPreview cellKind = iota
	cellEmpty
	cellFocus
	cellClose
)

// View renders scene as Size.Y lines of Size.X cells.
func (m Model) View(scene Scene) string {
	w, h := scene.Size.X, scene.Size.Y
	if w <= 0 || h <= 0 {
		return ""
	}

	runes := make([][]rune, h)
	kinds := make([][]cellKind, h)
	for y := range runes {
		runes[y] = []rune(strings.Repeat(" ", w))
		kinds[y] = make([]cellKind, w)
		for x := range kinds[y] {
			kinds[y][x] = cellEmpty
		}
	}

	if scene.Frame != nil {
		gray, to := Rasterize(scene.Frame, scene.Size, scene.Gravity)
		for y := to.Min.Y; y < to.Max.Y; y++ {
			for x := to.Min.X; x < to.Max.X; x++ {
				runes[y][x] = shade(gray.GrayAt(x, y).Y)
				kinds[y][x] = cellPreview
			}
		}
	} else if scene.Preview {
		msg := []rune("waiting for camera...")
		y := h / 2
		x0 := (w - len(msg)) / 2
		for i, r := range msg {
			if x := x0 + i; x >= 0 && x < w {
				runes[y][x] = r
				kinds[y][x] = cellPreview
			}
		}
	}

	drawFrame(runes, kinds, scene.Focus)
	drawClose(runes, kinds, scene.Close)

	focusColor := theme.ColorFocusDim
	switch {
	case m.flash > 0:
		focusColor = theme.ColorDelivered
	case m.pulse > 0.5:
		focusColor = theme.ColorFocus
	}
	styles := map[cellKind]lipgloss.Style{
		cellPreview: lipgloss.NewStyle().Foreground(theme.ColorPreview),
		cellEmpty:   lipgloss.NewStyle().Foreground(theme.ColorNoPreview),
		cellFocus:   lipgloss.NewStyle().Foreground(focusColor).Bold(true),
		cellClose:   lipgloss.NewStyle().Foreground(theme.ColorClose).Bold(true),
	}

	lines := make([]string, h)
	for y := 0; y < h; y++ {
		var b strings.Builder
		start := 0
		for x := 1; x <= w; x++ {
			if x == w || kinds[y][x] != kinds[y][start] {
				b.WriteString(styles[kinds[y][start]].Render(string(runes[y][start:x])))
				start = x
			}
		}
		lines[y] = b.String()
	}
	return strings.Join(lines, "\n")
}

// Rasterize scales img into a grayscale grid of cells. It returns the grid
// and the cell rectangle the image occupies.
func Rasterize(img image.Image, cells image.Point, g capture.VideoGravity) (*image.Gray, image.Rectangle) {
	virtual := image.Pt(cells.X, cells.Y*2)
	from, to := Fit(img.Bounds(), virtual, g)
	to = image.Rect(to.Min.X, to.Min.Y/2, to.Max.X, (to.Max.Y+1)/2).Intersect(image.Rect(0, 0, cells.X, cells.Y))

	gray := image.NewGray(image.Rect(0, 0, cells.X, cells.Y))
	if !to.Empty() && !from.Empty() {
		draw.ApproxBiLinear.Scale(gray, to, img, from, draw.Src, nil)
	}
	return gray, to
}

// Fit returns the part of src to sample and where it lands inside a
// destination of size dst, for gravity g.
func Fit(src image.Rectangle, dst image.Point, g capture.VideoGravity) (from, to image.Rectangle) {
	full := image.Rect(0, 0, dst.X, dst.Y)
	sw, sh := float64(src.Dx()), float64(src.Dy())
	if sw == 0 || sh == 0 || dst.X <= 0 || dst.Y <= 0 {
		return image.Rectangle{}, image.Rectangle{}
	}
	sx, sy := float64(dst.X)/sw, float64(dst.Y)/sh

	switch g {
	case capture.GravityResizeAspectFill:
		scale := sx
		if sy > scale {
			scale = sy
		}
		cw := int(float64(dst.X)/scale + 0.5)
		ch := int(float64(dst.Y)/scale + 0.5)
		off := image.Pt((src.Dx()-cw)/2, (src.Dy()-ch)/2)
		min := src.Min.Add(off)
		return image.Rectangle{Min: min, Max: min.Add(image.Pt(cw, ch))}, full
	case capture.GravityResizeAspect:
		scale := sx
		if sy < scale {
			scale = sy
		}
		tw := int(sw*scale + 0.5)
		th := int(sh*scale + 0.5)
		min := image.Pt((dst.X-tw)/2, (dst.Y-th)/2)
		return src, image.Rectangle{Min: min, Max: min.Add(image.Pt(tw, th))}
	default:
		return src, full
	}
}

func shade(lum uint8) rune {
	return rune(ramp[int(lum)*len(ramp)/256])
}

func drawFrame(runes [][]rune, kinds [][]cellKind, r image.Rectangle) {
	if r.Dx() < 2 || r.Dy() < 2 {
		return
	}
	set := func(x, y int, c rune) {
		if y >= 0 && y < len(runes) && x >= 0 && x < len(runes[y]) {
			runes[y][x] = c
			kinds[y][x] = cellFocus
		}
	}
	x0, y0, x1, y1 := r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1
	for x := x0 + 1; x < x1; x++ {
		set(x, y0, '─')
		set(x, y1, '─')
	}
	for y := y0 + 1; y < y1; y++ {
		set(x0, y, '│')
		set(x1, y, '│')
	}
	set(x0, y0, '┌')
	set(x1, y0, '┐')
	set(x0, y1, '└')
	set(x1, y1, '┘')
}

func drawClose(runes [][]rune, kinds [][]cellKind, r image.Rectangle) {
	if r.Empty() {
		return
	}
	label := []rune("[x]")
	y := r.Min.Y + r.Dy()/2
	x0 := r.Min.X + (r.Dx()-len(label))/2
	if x0 < r.Min.X {
		x0 = r.Min.X
	}
	for i, c := range label {
		x := x0 + i
		if y < len(runes) && x < len(runes[y]) {
			runes[y][x] = c
			kinds[y][x] = cellClose
		}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
