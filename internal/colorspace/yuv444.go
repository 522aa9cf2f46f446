package colorspace

import (
	"fmt"

	"github.com/meridian-rdp/core/internal/protocol"
)

// ToYUV444P converts a packed RGB Image to planar YUV444p: full-resolution
// chroma, one U/V sample per pixel.
func ToYUV444P(img *Image) (*Planar, error) {
	if err := validate(img.Width, img.Height, img.Stride); err != nil {
		return nil, err
	}
	out := &Planar{
		Format:  protocol.PixelFormatYUV444P,
		Width:   img.Width,
		Height:  img.Height,
		ChromaW: img.Width,
		ChromaH: img.Height,
		Y:       make([]byte, img.Width*img.Height),
		U:       make([]byte, img.Width*img.Height),
		V:       make([]byte, img.Width*img.Height),
	}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			r, g, b := rgbAt(img, x, y)
			idx := y*img.Width + x
			out.Y[idx] = rgbToY(r, g, b)
			out.U[idx], out.V[idx] = rgbToUV(r, g, b)
		}
	}
	return out, nil
}

// FromYUV444P reconstructs a packed RGB image from planar YUV444p.
func FromYUV444P(p *Planar, dstFormat protocol.PixelFormat, stride int) (*Image, error) {
	if err := validate(p.Width, p.Height, stride); err != nil {
		return nil, err
	}
	if len(p.Y) != p.Width*p.Height || len(p.U) != len(p.Y) || len(p.V) != len(p.Y) {
		return nil, fmt.Errorf("colorspace: plane size mismatch")
	}
	out := &Image{Format: dstFormat, Width: p.Width, Height: p.Height, Stride: stride, Pix: make([]byte, stride*p.Height)}
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			idx := y*p.Width + x
			r, g, b := yuvToRGB(int(p.Y[idx]), int(p.U[idx]), int(p.V[idx]))
			setRGB(out.Pix, stride, x, y, dstFormat, r, g, b)
		}
	}
	return out, nil
}
