package colorspace

import (
	"fmt"

	"github.com/meridian-rdp/core/internal/protocol"
)

// ToNV12 converts a packed RGB Image to semi-planar NV12 (one Y plane,
// one interleaved UV plane, both 4:2:0), generalizing the teacher's
// single-direction bgraToNV12 with proper 2x2 block averaging instead of
// a top-left-sample shortcut.
func ToNV12(img *Image) (*SemiPlanar, error) {
	if err := validate(img.Width, img.Height, img.Stride); err != nil {
		return nil, err
	}
	cw, ch := (img.Width+1)/2, (img.Height+1)/2
	out := &SemiPlanar{
		Width:  img.Width,
		Height: img.Height,
		Y:      make([]byte, img.Width*img.Height),
		UV:     make([]byte, cw*ch*2),
	}

	for by := 0; by < ch; by++ {
		for bx := 0; bx < cw; bx++ {
			x0, y0 := bx*2, by*2
			var rSum, gSum, bSum, n int
			for dy := 0; dy < 2; dy++ {
				y := y0 + dy
				if y >= img.Height {
					continue
				}
				for dx := 0; dx < 2; dx++ {
					x := x0 + dx
					if x >= img.Width {
						continue
					}
					r, g, b := rgbAt(img, x, y)
					out.Y[y*img.Width+x] = rgbToY(r, g, b)
					rSum += r
					gSum += g
					bSum += b
					n++
				}
			}
			if n == 0 {
				continue
			}
			u, v := rgbToUV(rSum/n, gSum/n, bSum/n)
			uvIdx := (by*cw + bx) * 2
			out.UV[uvIdx] = u
			out.UV[uvIdx+1] = v
		}
	}
	return out, nil
}

// FromNV12 reconstructs a packed RGB image from semi-planar NV12.
func FromNV12(s *SemiPlanar, dstFormat protocol.PixelFormat, stride int) (*Image, error) {
	if err := validate(s.Width, s.Height, stride); err != nil {
		return nil, err
	}
	if len(s.Y) != s.Width*s.Height {
		return nil, fmt.Errorf("colorspace: Y plane size mismatch")
	}
	cw := (s.Width + 1) / 2
	out := &Image{Format: dstFormat, Width: s.Width, Height: s.Height, Stride: stride, Pix: make([]byte, stride*s.Height)}

	for y := 0; y < s.Height; y++ {
		cy := y / 2
		for x := 0; x < s.Width; x++ {
			cx := x / 2
			uvIdx := (cy*cw + cx) * 2
			r, g, b := yuvToRGB(int(s.Y[y*s.Width+x]), int(s.UV[uvIdx]), int(s.UV[uvIdx+1]))
			setRGB(out.Pix, stride, x, y, dstFormat, r, g, b)
		}
	}
	return out, nil
}
