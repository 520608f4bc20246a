package decode

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// EncodeQR renders content as a size×size QR code with a quiet zone.
func EncodeQR(content string, size int) (image.Image, error) {
	m, err := qrcode.NewQRCodeWriter().Encode(content, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return toGray(m), nil
}

func toGray(m *gozxing.BitMatrix) image.Image {
	dst := image.NewGray(m.Bounds())
	draw.Draw(dst, dst.Bounds(), m, m.Bounds().Min, draw.Src)
	return dst
}
