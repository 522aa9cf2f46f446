package video

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meridian-rdp/core/internal/colorspace"
	"github.com/meridian-rdp/core/internal/protocol"
)

// FrameSource captures one image from the host display. Real
// implementations (DXGI, X11, Quartz, ...) are platform-specific
// collaborators outside this package's scope; Capture returning a nil
// image with a nil error means "no new frame available".
type FrameSource interface {
	Capture() (*colorspace.Image, error)
}

// Sink receives encoded packets and the dirty regions they cover, ready
// for framing into protocol.VideoFrame messages.
type Sink func(pkt Packet, regions []protocol.Rect, pts uint64)

// PipelineConfig bundles the pieces a Pipeline ties together.
type PipelineConfig struct {
	Source     FrameSource
	Encoder    *Encoder
	Adaptive   *AdaptiveBitrate // optional
	InitialFPS int
	MinFPS     int
	MaxFPS     int
	Sink       Sink
}

// Pipeline paces captures at the negotiated FPS, runs dirty-region
// detection, feeds dirty frames to the Encoder, and reports idle ticks so
// the Encoder can apply its stall policy — generalizing the teacher's
// ticker-driven capture loop (session_capture.go's captureLoopTicker) to a
// platform-neutral FrameSource.
type Pipeline struct {
	cfg PipelineConfig

	mu       sync.Mutex
	detector *DirtyRegionDetector
	fps      int32

	consecutiveIdle int32
	idleThreshold   int32

	stopOnce sync.Once
	stopCh   chan struct{}
}

const defaultIdleThreshold = 30

func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Source == nil || cfg.Encoder == nil || cfg.Sink == nil {
		return nil, fmt.Errorf("video: pipeline requires Source, Encoder, and Sink")
	}
	fps := cfg.InitialFPS
	if fps <= 0 {
		fps = 30
	}
	return &Pipeline{
		cfg:           cfg,
		fps:           int32(fps),
		idleThreshold: defaultIdleThreshold,
		stopCh:        make(chan struct{}),
	}, nil
}

// SetFPS changes the pacing ticker's target rate; Run picks up the new
// value on its next tick via ticker.Reset.
func (p *Pipeline) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	if p.cfg.MaxFPS > 0 && fps > p.cfg.MaxFPS {
		fps = p.cfg.MaxFPS
	}
	if p.cfg.MinFPS > 0 && fps < p.cfg.MinFPS {
		fps = p.cfg.MinFPS
	}
	atomic.StoreInt32(&p.fps, int32(fps))
}

func (p *Pipeline) currentFPS() int {
	return int(atomic.LoadInt32(&p.fps))
}

// Resize rebuilds the dirty-region detector for a new resolution and
// restarts the encoder, mirroring a client-driven resolution change.
func (p *Pipeline) Resize(width, height, stride int) {
	p.mu.Lock()
	p.detector = NewDirtyRegionDetector(width, height, stride)
	p.mu.Unlock()
	p.cfg.Encoder.Resize(width, height)
}

// Stop ends a running Run loop.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Run drives the capture→diff→encode→sink loop until ctx is cancelled or
// Stop is called. It is meant to run on its own goroutine.
func (p *Pipeline) Run(ctx context.Context) error {
	fps := p.currentFPS()
	frameDuration := time.Second / time.Duration(fps)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			newFPS := p.currentFPS()
			if newFPS != fps {
				fps = newFPS
				frameDuration = time.Second / time.Duration(fps)
				ticker.Reset(frameDuration)
			}
			p.tick()
		}
	}
}

func (p *Pipeline) tick() {
	img, err := p.cfg.Source.Capture()
	if err != nil {
		log.Warn("frame capture failed", "error", err)
		return
	}
	if img == nil {
		p.cfg.Encoder.NoteIdleTick()
		return
	}

	p.mu.Lock()
	if p.detector == nil {
		p.detector = NewDirtyRegionDetector(img.Width, img.Height, img.Stride)
	}
	detector := p.detector
	p.mu.Unlock()

	regions := detector.DirtyRegions(img.Pix)
	if len(regions) == 0 {
		p.cfg.Encoder.NoteIdleTick()
		idle := atomic.AddInt32(&p.consecutiveIdle, 1)
		if idle == p.idleThreshold {
			log.Debug("capture idle threshold reached")
		}
		return
	}
	wasIdle := atomic.SwapInt32(&p.consecutiveIdle, 0) >= p.idleThreshold
	if wasIdle {
		// Scene resumed after a static period: force an IDR so the
		// decoder can resynchronize quickly.
		_ = p.cfg.Encoder.ForceKeyframe()
	}

	planar, err := colorspace.ToYUV420P(img)
	if err != nil {
		log.Warn("colour conversion failed", "error", err)
		return
	}
	payload := append(append(append([]byte{}, planar.Y...), planar.U...), planar.V...)

	packets, err := p.cfg.Encoder.Feed(payload)
	if err != nil {
		log.Warn("encode failed", "error", err)
		return
	}
	for _, pkt := range packets {
		p.cfg.Sink(pkt, regions, p.cfg.Encoder.NextPTS())
	}
}
