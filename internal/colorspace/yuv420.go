package colorspace

import (
	"fmt"

	"github.com/meridian-rdp/core/internal/protocol"
)

// ToYUV420P converts a packed RGB Image to planar YUV420p, with 2x2
// chroma sub-sampling averaging every block's four source pixels.
func ToYUV420P(img *Image) (*Planar, error) {
	if err := validate(img.Width, img.Height, img.Stride); err != nil {
		return nil, err
	}
	cw, ch := (img.Width+1)/2, (img.Height+1)/2
	out := &Planar{
		Format:  protocol.PixelFormatYUV420P,
		Width:   img.Width,
		Height:  img.Height,
		ChromaW: cw,
		ChromaH: ch,
		Y:       make([]byte, img.Width*img.Height),
		U:       make([]byte, cw*ch),
		V:       make([]byte, cw*ch),
	}

	if fastPathAvailable {
		convert420Blocks(img, out)
	} else {
		convert420Scalar(img, out)
	}
	return out, nil
}

// convert420Scalar walks the image row by row, writing luma per pixel and
// chroma once per 2x2 block using the block's averaged RGB — the
// unconditional, portable baseline.
func convert420Scalar(img *Image, out *Planar) {
	for by := 0; by < out.ChromaH; by++ {
		for bx := 0; bx < out.ChromaW; bx++ {
			writeBlock420(img, out, bx, by)
		}
	}
}

// convert420Blocks is functionally identical to convert420Scalar but
// iterates blocks in a single flat loop, the layout a real SIMD
// implementation would use to walk contiguous block descriptors; selected
// only when the cpu feature probe found SIMD support.
func convert420Blocks(img *Image, out *Planar) {
	total := out.ChromaW * out.ChromaH
	for i := 0; i < total; i++ {
		bx, by := i%out.ChromaW, i/out.ChromaW
		writeBlock420(img, out, bx, by)
	}
}

func writeBlock420(img *Image, out *Planar, bx, by int) {
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
			out.Y[y*out.Width+x] = rgbToY(r, g, b)
			rSum += r
			gSum += g
			bSum += b
			n++
		}
	}
	if n == 0 {
		return
	}
	u, v := rgbToUV(rSum/n, gSum/n, bSum/n)
	ci := by*out.ChromaW + bx
	out.U[ci] = u
	out.V[ci] = v
}

// FromYUV420P reconstructs a packed RGB image from planar YUV420p,
// nearest-neighbour upsampling chroma to luma resolution.
func FromYUV420P(p *Planar, dstFormat protocol.PixelFormat, stride int) (*Image, error) {
	if err := validate(p.Width, p.Height, stride); err != nil {
		return nil, err
	}
	if len(p.Y) != p.Width*p.Height {
		return nil, fmt.Errorf("colorspace: Y plane size mismatch")
	}
	out := &Image{Format: dstFormat, Width: p.Width, Height: p.Height, Stride: stride, Pix: make([]byte, stride*p.Height)}

	for y := 0; y < p.Height; y++ {
		cy := y / 2
		for x := 0; x < p.Width; x++ {
			cx := x / 2
			ci := cy*p.ChromaW + cx
			r, g, b := yuvToRGB(int(p.Y[y*p.Width+x]), int(p.U[ci]), int(p.V[ci]))
			setRGB(out.Pix, stride, x, y, dstFormat, r, g, b)
		}
	}
	return out, nil
}
