// Package colorspace converts captured framebuffers between packed RGB
// pixel formats and the planar/semi-planar YUV formats codecs consume,
// using BT.601 limited-range coefficients (spec.md §4.3).
package colorspace

import (
	"fmt"

	"github.com/meridian-rdp/core/internal/protocol"
)

// Image is a packed-RGB source or destination buffer: BGRX8888 or
// RGBX8888, 4 bytes per pixel, rows of length >= width*4 allowing for
// padding (stride).
type Image struct {
	Format protocol.PixelFormat
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// Planar is a YUV420p or YUV444p result: three independent planes.
type Planar struct {
	Format     protocol.PixelFormat
	Width      int
	Height     int
	Y, U, V    []byte
	ChromaW    int
	ChromaH    int
}

// SemiPlanar is an NV12 result: one Y plane, one interleaved UV plane.
type SemiPlanar struct {
	Width, Height int
	Y, UV         []byte
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func clampLuma(v int) byte {
	if v < 16 {
		return 16
	}
	if v > 235 {
		return 235
	}
	return byte(v)
}

func clampChroma(v int) byte {
	if v < 16 {
		return 16
	}
	if v > 240 {
		return 240
	}
	return byte(v)
}

// rgbAt returns r,g,b for pixel (x,y) honoring BGRX vs RGBX channel order.
func rgbAt(img *Image, x, y int) (r, g, b int) {
	off := y*img.Stride + x*4
	p0, p1, p2 := int(img.Pix[off]), int(img.Pix[off+1]), int(img.Pix[off+2])
	if img.Format == protocol.PixelFormatRGBX8888 {
		return p0, p1, p2
	}
	// BGRX8888 (default/teacher's native capture format)
	return p2, p1, p0
}

func setRGB(pix []byte, stride, x, y int, format protocol.PixelFormat, r, g, b byte) {
	off := y*stride + x*4
	if format == protocol.PixelFormatRGBX8888 {
		pix[off], pix[off+1], pix[off+2], pix[off+3] = r, g, b, 0xFF
		return
	}
	pix[off], pix[off+1], pix[off+2], pix[off+3] = b, g, r, 0xFF
}

// rgbToY applies the half-away-from-zero-rounded BT.601 luma formula.
func rgbToY(r, g, b int) byte {
	// Y = (66*R + 129*G + 25*B + 128) >> 8 + 16, half-away-from-zero via +128 bias.
	y := (66*r+129*g+25*b+128)>>8 + 16
	return clampLuma(y)
}

func rgbToUV(r, g, b int) (u, v byte) {
	uVal := (-38*r-74*g+112*b+128)>>8 + 128
	vVal := (112*r-94*g-18*b+128)>>8 + 128
	return clampChroma(uVal), clampChroma(vVal)
}

// yuvToRGB inverts the BT.601 limited-range transform.
func yuvToRGB(y, u, v int) (r, g, b byte) {
	c := y - 16
	d := u - 128
	e := v - 128
	r32 := (298*c + 409*e + 128) >> 8
	g32 := (298*c - 100*d - 208*e + 128) >> 8
	b32 := (298*c + 516*d + 128) >> 8
	return clampByte(r32), clampByte(g32), clampByte(b32)
}

// validate checks the invariants shared by every conversion entry point.
func validate(width, height, stride int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("colorspace: non-positive dimensions %dx%d", width, height)
	}
	if stride < width*4 {
		return fmt.Errorf("colorspace: stride %d shorter than width*4 (%d)", stride, width*4)
	}
	return nil
}
