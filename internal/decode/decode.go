// Package decode adapts the gozxing readers to capture.Decoder.
package decode

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
)

// Options configures which readers run on each frame.
type Options struct {
	// TryHarder spends more time per frame looking for codes.
	TryHarder bool
	// Symbologies limits the readers. Empty means every supported one.
	Symbologies []capture.Symbology
}

type reader struct {
	symbologies []capture.Symbology
	r           gozxing.Reader
}

// Decoder runs a fixed set of gozxing readers over a frame and returns
// every code found, one per reader at most.
type Decoder struct {
	mu      sync.Mutex
	readers []reader
	hints   map[gozxing.DecodeHintType]interface{}
}

// New builds a decoder for opts.
func New(opts Options) *Decoder {
	hints := make(map[gozxing.DecodeHintType]interface{})
	if opts.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	want := make(map[capture.Symbology]bool)
	for _, s := range opts.Symbologies {
		want[s] = true
	}
	all := len(want) == 0

	var readers []reader
	if all || want[capture.SymbologyQR] {
		readers = append(readers, reader{
			symbologies: []capture.Symbology{capture.SymbologyQR},
			r:           qrcode.NewQRCodeReader(),
		})
	}
	if all || want[capture.SymbologyDataMatrix] {
		readers = append(readers, reader{
			symbologies: []capture.Symbology{capture.SymbologyDataMatrix},
			r:           datamatrix.NewDataMatrixReader(),
		})
	}
	if all || want[capture.SymbologyEAN13] || want[capture.SymbologyEAN8] ||
		want[capture.SymbologyUPCA] || want[capture.SymbologyUPCE] {
		readers = append(readers, reader{
			symbologies: []capture.Symbology{
				capture.SymbologyEAN13, capture.SymbologyEAN8,
				capture.SymbologyUPCA, capture.SymbologyUPCE,
			},
			r: oned.NewMultiFormatUPCEANReader(hints),
		})
	}
	if all || want[capture.SymbologyCode128] {
		readers = append(readers, reader{
			symbologies: []capture.Symbology{capture.SymbologyCode128},
			r:           oned.NewCode128Reader(),
		})
	}

	return &Decoder{readers: readers, hints: hints}
}

// Symbologies lists what the configured readers can recognise.
func (d *Decoder) Symbologies() []capture.Symbology {
	var out []capture.Symbology
	for _, r := range d.readers {
		out = append(out, r.symbologies...)
	}
	return out
}

// Decode returns the codes found in img. Frames without a code yield an
// empty slice and no error.
func (d *Decoder) Decode(img image.Image) ([]capture.MetadataObject, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("failed to get NewBinaryBitmapFromImage: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var objects []capture.MetadataObject
	for _, r := range d.readers {
		result, err := r.r.Decode(bmp, d.hints)
		r.r.Reset()
		if err != nil {
			// NotFound, checksum and format errors all mean "nothing
			// readable in this frame" for this reader.
			continue
		}
		objects = append(objects, capture.MetadataObject{
			Type:        Symbology(result.GetBarcodeFormat()),
			StringValue: result.GetText(),
			Bounds:      bounds(result.GetResultPoints()),
		})
	}
	return objects, nil
}

// Symbology maps a gozxing format to the capture vocabulary.
func Symbology(f gozxing.BarcodeFormat) capture.Symbology {
	switch f {
	case gozxing.BarcodeFormat_QR_CODE:
		return capture.SymbologyQR
	case gozxing.BarcodeFormat_DATA_MATRIX:
		return capture.SymbologyDataMatrix
	case gozxing.BarcodeFormat_EAN_13:
		return capture.SymbologyEAN13
	case gozxing.BarcodeFormat_EAN_8:
		return capture.SymbologyEAN8
	case gozxing.BarcodeFormat_UPC_A:
		return capture.SymbologyUPCA
	case gozxing.BarcodeFormat_UPC_E:
		return capture.SymbologyUPCE
	case gozxing.BarcodeFormat_CODE_128:
		return capture.SymbologyCode128
	default:
		return capture.SymbologyUnknown
	}
}

func bounds(points []gozxing.ResultPoint) image.Rectangle {
	if len(points) == 0 {
		return image.Rectangle{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.GetX())
		minY = math.Min(minY, p.GetY())
		maxX = math.Max(maxX, p.GetX())
		maxY = math.Max(maxY, p.GetY())
	}
	return image.Rect(int(minX), int(minY), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
}
