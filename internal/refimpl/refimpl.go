// Package refimpl provides the portable, non-platform-specific
// implementations of the capture/inject/audio collaborator interfaces
// (video.FrameSource, input.Injector, audio.Capturer) that the role
// binaries wire in by default. Real deployments swap these for DXGI/X11/
// Quartz capture, SendInput/XTest/CGEventPost injection, and WASAPI/
// PulseAudio/CoreAudio capture behind the same interfaces; this package
// exists so the binaries run end-to-end without any OS-specific driver.
package refimpl

import (
	"math"
	"sync"
	"time"

	"github.com/meridian-rdp/core/internal/colorspace"
	"github.com/meridian-rdp/core/internal/logging"
	"github.com/meridian-rdp/core/internal/protocol"
)

var log = logging.L("refimpl")

// TestPatternSource is a video.FrameSource that renders a drifting
// diagonal gradient, so dirty-region detection and the encode pipeline
// have continuously changing content to exercise without any real
// display capture API.
type TestPatternSource struct {
	Width, Height int

	mu    sync.Mutex
	phase int
}

// NewTestPatternSource constructs a source at the given capture size,
// falling back to 1280x720 if either dimension is non-positive.
func NewTestPatternSource(width, height int) *TestPatternSource {
	if width <= 0 || height <= 0 {
		width, height = 1280, 720
	}
	return &TestPatternSource{Width: width, Height: height}
}

func (s *TestPatternSource) Capture() (*colorspace.Image, error) {
	s.mu.Lock()
	s.phase++
	phase := s.phase
	s.mu.Unlock()

	w, h := s.Width, s.Height
	stride := w * 4
	pix := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*stride + x*4
			pix[i+0] = byte((x + phase) % 256)   // B
			pix[i+1] = byte((y + phase) % 256)   // G
			pix[i+2] = byte((x + y + phase) % 256) // R
			pix[i+3] = 0
		}
	}
	return &colorspace.Image{
		Format: protocol.PixelFormatBGRX8888,
		Width:  w,
		Height: h,
		Stride: stride,
		Pix:    pix,
	}, nil
}

// NoopInjector satisfies input.Injector by logging every call instead of
// driving a real OS synthetic-input API. Useful for headless servers and
// integration tests where there is no desktop session to inject into.
type NoopInjector struct{}

func (NoopInjector) InjectKey(raw uint32, down bool) error {
	log.Debug("inject key (noop)", "raw_keycode", raw, "down", down)
	return nil
}

func (NoopInjector) InjectPointerMotion(x, y int32) error {
	log.Debug("inject pointer motion (noop)", "x", x, "y", y)
	return nil
}

func (NoopInjector) InjectPointerButton(button uint32, down bool) error {
	log.Debug("inject pointer button (noop)", "button", button, "down", down)
	return nil
}

// ToneCapturer is an audio.Capturer that synthesizes a constant-amplitude
// square wave at FrameBytes cadence instead of tapping real system audio,
// so the audio plane has traffic to carry without any WASAPI/PulseAudio/
// CoreAudio collaborator present.
type ToneCapturer struct {
	mu      sync.Mutex
	stopped chan struct{}
}

func NewToneCapturer() *ToneCapturer {
	return &ToneCapturer{}
}

func (t *ToneCapturer) Start(callback func([]byte)) error {
	t.mu.Lock()
	if t.stopped != nil {
		t.mu.Unlock()
		return nil
	}
	t.stopped = make(chan struct{})
	stopped := t.stopped
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		var n int
		for {
			select {
			case <-stopped:
				return
			case <-ticker.C:
				callback(squareWaveFrame(n))
				n++
			}
		}
	}()
	return nil
}

func (t *ToneCapturer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped != nil {
		close(t.stopped)
		t.stopped = nil
	}
}

// squareWaveFrame fills one 160-byte mu-law frame with a 440Hz tone.
func squareWaveFrame(n int) []byte {
	const frameBytes = 160
	const sampleRate = 8000
	const freq = 440.0
	frame := make([]byte, frameBytes)
	for i := range frame {
		t := float64(n*frameBytes+i) / sampleRate
		if math.Sin(2*math.Pi*freq*t) >= 0 {
			frame[i] = 0xFF
		} else {
			frame[i] = 0x7F
		}
	}
	return frame
}
