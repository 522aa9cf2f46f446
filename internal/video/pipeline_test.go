package video

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/meridian-rdp/core/internal/colorspace"
	"github.com/meridian-rdp/core/internal/protocol"
)

type fakeSource struct {
	mu     sync.Mutex
	frames []*colorspace.Image
	idx    int
}

func (f *fakeSource) Capture() (*colorspace.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.frames) {
		return f.frames[len(f.frames)-1], nil
	}
	img := f.frames[f.idx]
	f.idx++
	return img, nil
}

func testImage(w, h int, shade byte) *colorspace.Image {
	stride := w * 4
	pix := make([]byte, stride*h)
	for i := 0; i < w*h; i++ {
		off := i * 4
		pix[off], pix[off+1], pix[off+2], pix[off+3] = shade, shade, shade, 0xFF
	}
	return &colorspace.Image{Format: protocol.PixelFormatBGRX8888, Width: w, Height: h, Stride: stride, Pix: pix}
}

func TestPipelineEmitsPacketsForChangedFrames(t *testing.T) {
	cfg := DefaultEncoderConfig()
	cfg.Width, cfg.Height = 64, 64
	enc, err := NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	source := &fakeSource{frames: []*colorspace.Image{
		testImage(64, 64, 10),
		testImage(64, 64, 200),
	}}

	var mu sync.Mutex
	var sunk int
	p, err := NewPipeline(PipelineConfig{
		Source:     source,
		Encoder:    enc,
		InitialFPS: 200,
		Sink: func(pkt Packet, regions []protocol.Rect, pts uint64) {
			mu.Lock()
			sunk++
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = p.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if sunk == 0 {
		t.Fatal("expected at least one packet to reach the sink")
	}
}

func TestPipelineNotesIdleTicksWhenUnchanged(t *testing.T) {
	cfg := DefaultEncoderConfig()
	cfg.Width, cfg.Height = 32, 32
	enc, err := NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	img := testImage(32, 32, 50)
	source := &fakeSource{frames: []*colorspace.Image{img}}

	p, err := NewPipeline(PipelineConfig{
		Source:     source,
		Encoder:    enc,
		InitialFPS: 100,
		Sink:       func(Packet, []protocol.Rect, uint64) {},
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	_ = p.Run(ctx)

	if enc.FramesSinceMotion() == 0 {
		t.Fatal("expected idle ticks to accumulate on an unchanging source")
	}
}

func TestPipelineRejectsIncompleteConfig(t *testing.T) {
	if _, err := NewPipeline(PipelineConfig{}); err == nil {
		t.Fatal("expected error for empty PipelineConfig")
	}
}

func TestPipelineStopEndsRun(t *testing.T) {
	cfg := DefaultEncoderConfig()
	cfg.Width, cfg.Height = 16, 16
	enc, err := NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	source := &fakeSource{frames: []*colorspace.Image{testImage(16, 16, 1)}}
	p, err := NewPipeline(PipelineConfig{
		Source:     source,
		Encoder:    enc,
		InitialFPS: 200,
		Sink:       func(Packet, []protocol.Rect, uint64) {},
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	p.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after Stop")
	}
}
