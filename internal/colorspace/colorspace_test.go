package colorspace

import (
	"testing"

	"github.com/meridian-rdp/core/internal/protocol"
)

// smoothTestImage builds a low-frequency gradient, the kind of "smooth
// image" spec.md's round-trip property is defined over.
func smoothTestImage(w, h int) *Image {
	stride := w * 4
	pix := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := y*stride + x*4
			r := byte((x * 255) / w)
			g := byte((y * 255) / h)
			b := byte(((x + y) * 255) / (w + h))
			pix[off], pix[off+1], pix[off+2], pix[off+3] = b, g, r, 0xFF // BGRX
		}
	}
	return &Image{Format: protocol.PixelFormatBGRX8888, Width: w, Height: h, Stride: stride, Pix: pix}
}

func roundTripWithinTolerance(t *testing.T, src *Image, roundTrip func(*Image) (*Image, error)) {
	t.Helper()
	got, err := roundTrip(src)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}

	total := src.Width * src.Height
	within := 0
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			sr, sg, sb := rgbAt(src, x, y)
			gr, gg, gb := rgbAt(got, x, y)
			if absInt(sr-gr) <= 2 && absInt(sg-gg) <= 2 && absInt(sb-gb) <= 2 {
				within++
			}
		}
	}
	ratio := float64(within) / float64(total)
	if ratio < 0.99 {
		t.Fatalf("only %.2f%% of pixels within tolerance, want >= 99%%", ratio*100)
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestRoundTripYUV420P(t *testing.T) {
	src := smoothTestImage(64, 48)
	roundTripWithinTolerance(t, src, func(img *Image) (*Image, error) {
		p, err := ToYUV420P(img)
		if err != nil {
			return nil, err
		}
		return FromYUV420P(p, protocol.PixelFormatBGRX8888, img.Stride)
	})
}

func TestRoundTripYUV444P(t *testing.T) {
	src := smoothTestImage(64, 48)
	roundTripWithinTolerance(t, src, func(img *Image) (*Image, error) {
		p, err := ToYUV444P(img)
		if err != nil {
			return nil, err
		}
		return FromYUV444P(p, protocol.PixelFormatBGRX8888, img.Stride)
	})
}

func TestRoundTripNV12(t *testing.T) {
	src := smoothTestImage(64, 48)
	roundTripWithinTolerance(t, src, func(img *Image) (*Image, error) {
		s, err := ToNV12(img)
		if err != nil {
			return nil, err
		}
		return FromNV12(s, protocol.PixelFormatBGRX8888, img.Stride)
	})
}

func TestYUV444ReconstructsHardChromaEdge(t *testing.T) {
	// A vertical hard red/blue colour edge; 4:4:4 carries full chroma
	// resolution, so the red side comes back within integer rounding.
	w, h := 16, 16
	stride := w * 4
	pix := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := y*stride + x*4
			if x < w/2 {
				pix[off], pix[off+1], pix[off+2], pix[off+3] = 0, 0, 255, 0xFF // BGRX red
			} else {
				pix[off], pix[off+1], pix[off+2], pix[off+3] = 255, 0, 0, 0xFF // BGRX blue
			}
		}
	}
	src := &Image{Format: protocol.PixelFormatBGRX8888, Width: w, Height: h, Stride: stride, Pix: pix}

	p444, err := ToYUV444P(src)
	if err != nil {
		t.Fatalf("ToYUV444P: %v", err)
	}
	got444, err := FromYUV444P(p444, protocol.PixelFormatBGRX8888, stride)
	if err != nil {
		t.Fatalf("FromYUV444P: %v", err)
	}
	r, g, b := rgbAt(got444, 0, 0)
	if r < 250 || g > 5 || b > 5 {
		t.Fatalf("expected near-exact red at (0,0), got r=%d g=%d b=%d", r, g, b)
	}
}

func TestDimensionValidation(t *testing.T) {
	bad := &Image{Format: protocol.PixelFormatBGRX8888, Width: 0, Height: 10, Stride: 40}
	if _, err := ToYUV420P(bad); err == nil {
		t.Fatal("expected error for zero width")
	}
}

func TestScalarAndFastPathAgree(t *testing.T) {
	src := smoothTestImage(33, 17) // odd dimensions exercise boundary blocks
	cw, ch := (src.Width+1)/2, (src.Height+1)/2

	scalarOut := &Planar{Width: src.Width, Height: src.Height, ChromaW: cw, ChromaH: ch,
		Y: make([]byte, src.Width*src.Height), U: make([]byte, cw*ch), V: make([]byte, cw*ch)}
	convert420Scalar(src, scalarOut)

	blockOut := &Planar{Width: src.Width, Height: src.Height, ChromaW: cw, ChromaH: ch,
		Y: make([]byte, src.Width*src.Height), U: make([]byte, cw*ch), V: make([]byte, cw*ch)}
	convert420Blocks(src, blockOut)

	for i := range scalarOut.Y {
		if scalarOut.Y[i] != blockOut.Y[i] {
			t.Fatalf("Y plane diverges at %d: scalar=%d fast=%d", i, scalarOut.Y[i], blockOut.Y[i])
		}
	}
	for i := range scalarOut.U {
		if scalarOut.U[i] != blockOut.U[i] || scalarOut.V[i] != blockOut.V[i] {
			t.Fatalf("chroma diverges at block %d", i)
		}
	}
}
