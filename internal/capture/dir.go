package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const defaultFrameRate = 15

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// DirDevice replays the images of a directory as a video stream, in
// lexical file name order.
type DirDevice struct {
	path      string
	frameRate int
	loop      bool
}

func NewDirDevice(path string, frameRate int, loop bool) *DirDevice {
	if frameRate <= 0 {
		frameRate = defaultFrameRate
	}
	return &DirDevice{path: path, frameRate: frameRate, loop: loop}
}

func (d *DirDevice) ID() string       { return "dir:" + d.path }
func (d *DirDevice) Name() string     { return filepath.Base(d.path) }
func (d *DirDevice) Type() DeviceType { return DeviceDirectory }

func (d *DirDevice) Open(ctx context.Context) (FrameReader, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", d.path, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(d.path, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", d.path)
	}
	sort.Strings(files)

	return &dirReader{
		files:    files,
		loop:     d.loop,
		interval: time.Second / time.Duration(d.frameRate),
	}, nil
}

type dirReader struct {
	files    []string
	next     int
	loop     bool
	interval time.Duration
	last     time.Time
}

func (r *dirReader) ReadFrame(ctx context.Context) (image.Image, error) {
	if r.next >= len(r.files) {
		if !r.loop {
			return nil, io.EOF
		}
		r.next = 0
	}

	if !r.last.IsZero() {
		wait := time.Until(r.last.Add(r.interval))
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
	}
	r.last = time.Now()

	path := r.files[r.next]
	r.next++
	return decodeFile(path)
}

func (r *dirReader) Close() error { return nil }

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
