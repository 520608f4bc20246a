package mock

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/decode"
)

func TestParseMockSpec(t *testing.T) {
	d, err := capture.ParseDevice("mock:ABC123, second ,", capture.DeviceOptions{FrameRate: 10})
	if err != nil {
		t.Fatalf("ParseDevice() error: %v", err)
	}
	md, ok := d.(*Device)
	if !ok {
		t.Fatalf("device type = %T, want *mock.Device", d)
	}
	if len(md.payloads) != 2 || md.payloads[0] != "ABC123" || md.payloads[1] != "second" {
		t.Errorf("payloads = %q", md.payloads)
	}
	if d.Type() != capture.DeviceVirtual {
		t.Errorf("Type() = %v, want virtual", d.Type())
	}
}

func newTestReader(t *testing.T, payloads []string, perScene int, loop bool) *reader {
	t.Helper()
	r, err := NewDevice(payloads, 1000, loop).Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	rd := r.(*reader)
	rd.interval = 0
	rd.perScene = perScene
	rd.rng = rand.New(rand.NewSource(1))
	return rd
}

func TestReaderFilmsPayloads(t *testing.T) {
	r := newTestReader(t, []string{"ABC123"}, 8, false)
	dec := decode.New(decode.Options{Symbologies: []capture.Symbology{capture.SymbologyQR}})

	var found []string
	for i := 0; i < 8; i++ {
		img, err := r.ReadFrame(context.Background())
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		objs, err := dec.Decode(img)
		if err != nil {
			t.Fatalf("decode frame %d: %v", i, err)
		}
		if len(objs) > 0 {
			found = append(found, objs[0].StringValue)
		}
	}

	// Steady scene: 3 lead-in frames, then the code.
	if len(found) != 5 {
		t.Fatalf("decoded %d frames, want 5", len(found))
	}
	for _, v := range found {
		if v != "ABC123" {
			t.Errorf("decoded %q, want ABC123", v)
		}
	}

	if _, err := r.ReadFrame(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("after last scene err = %v, want io.EOF", err)
	}
}

func TestReaderLoops(t *testing.T) {
	r := newTestReader(t, []string{"A"}, 4, true)
	for i := 0; i < 12; i++ {
		if _, err := r.ReadFrame(context.Background()); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
}

func TestReaderEmptyScene(t *testing.T) {
	r := newTestReader(t, nil, 4, false)
	for i := 0; i < 10; i++ {
		img, err := r.ReadFrame(context.Background())
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if img.Bounds().Dx() != frameSize {
			t.Errorf("frame width = %d", img.Bounds().Dx())
		}
	}
}

func TestReaderClosed(t *testing.T) {
	r := newTestReader(t, []string{"A"}, 4, true)
	r.Close()
	if _, err := r.ReadFrame(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestVisible(t *testing.T) {
	tests := []struct {
		pattern string
		n       int
		want    bool
	}{
		{PatternSteady, 0, false},
		{PatternSteady, 3, true},
		{PatternFlicker, 0, false},
		{PatternFlicker, 1, true},
		{PatternLate, 5, false},
		{PatternLate, 20, true},
	}
	for _, tt := range tests {
		if got := visible(tt.pattern, tt.n, 30); got != tt.want {
			t.Errorf("visible(%s, %d) = %v, want %v", tt.pattern, tt.n, got, tt.want)
		}
	}
}
