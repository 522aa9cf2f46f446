// Package video implements the server-side capture→encode pipeline:
// dirty-region detection, encoder lifecycle and stall policy, FPS pacing,
// and adaptive bitrate control (spec.md §4.4).
package video

import (
	"fmt"
	"sync"

	"github.com/meridian-rdp/core/internal/logging"
	"github.com/meridian-rdp/core/internal/protocol"
)

var log = logging.L("video")

// QualityPreset is a coarse knob AdaptiveBitrate steps through.
type QualityPreset string

const (
	QualityAuto   QualityPreset = "auto"
	QualityLow    QualityPreset = "low"
	QualityMedium QualityPreset = "medium"
	QualityHigh   QualityPreset = "high"
	QualityUltra  QualityPreset = "ultra"
)

func (q QualityPreset) valid() bool {
	switch q {
	case QualityAuto, QualityLow, QualityMedium, QualityHigh, QualityUltra:
		return true
	default:
		return false
	}
}

// Packet is one encoded output unit drained from the Backend.
type Packet struct {
	Data     []byte
	Keyframe bool
}

// Backend is the black-box encoder/decoder interface: spec.md treats the
// codec library itself as an external collaborator with a string-keyed
// options table. ffmpeg_options_cmd's output is merged into Options
// before Configure.
type Backend interface {
	Name() string
	IsHardware() bool
	Configure(codec string, width, height int, format protocol.PixelFormat, options map[string]string) error
	Encode(frame []byte) ([]Packet, error)
	SetBitrate(bps int) error
	SetQuality(q QualityPreset) error
	SetFPS(fps int) error
	ForceKeyframe() error
	Close() error
}

// BackendFactory constructs a Backend for a codec name. Registering
// additional factories (hardware encoders) is the only extension point;
// none are bundled here since real codec libraries are out of scope.
type BackendFactory func() (Backend, error)

var (
	factoriesMu sync.Mutex
	factories   = map[string]BackendFactory{
		"software": func() (Backend, error) { return newSoftwareBackend(), nil },
	}
)

// RegisterBackend adds or replaces a named backend factory.
func RegisterBackend(name string, factory BackendFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

func newBackend(name string) (Backend, error) {
	factoriesMu.Lock()
	factory, ok := factories[name]
	factoriesMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("video: no backend registered for %q", name)
	}
	return factory()
}

// EncoderConfig is the negotiated state an Encoder is (re)created from.
type EncoderConfig struct {
	Backend      string // factory name, e.g. "software"
	Codec        string
	Width        int
	Height       int
	PixelFormat  protocol.PixelFormat
	Options      map[string]string
	MaxStallImg  uint32 // frames_since_motion threshold before releasing the encoder
	InitialBPS   int
}

func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		Backend:     "software",
		Codec:       "raw",
		PixelFormat: protocol.PixelFormatYUV420P,
		MaxStallImg: 150,
		InitialBPS:  2_000_000,
		Options:     map[string]string{},
	}
}

// Encoder owns an opaque codec context plus the stall bookkeeping from
// spec.md §3's "Encoder handle" data model.
type Encoder struct {
	mu sync.Mutex

	cfg     EncoderConfig
	backend Backend

	framesSinceMotion uint32
	stalled           bool
	nextPTS           uint64
}

// NewEncoder validates cfg and constructs (but does not yet Configure) the
// backend; Feed calls Configure lazily on first use so a freshly
// (re)created Encoder always starts in the "stalled" state per spec.md
// §4.4 step 3's "(re)create encoder... clear stalled".
func NewEncoder(cfg EncoderConfig) (*Encoder, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("video: invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.MaxStallImg == 0 {
		cfg.MaxStallImg = DefaultEncoderConfig().MaxStallImg
	}
	backend, err := newBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}
	return &Encoder{cfg: cfg, backend: backend, stalled: true}, nil
}

func (e *Encoder) Stalled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stalled
}

func (e *Encoder) FramesSinceMotion() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.framesSinceMotion
}

// NoteIdleTick implements spec.md §4.4 steps 1-2 for a tick with no dirty
// regions: increments frames_since_motion and marks the encoder stalled
// once it reaches MaxStallImg. The backend is not closed; the next Feed
// reconfigures the same backend instance.
func (e *Encoder) NoteIdleTick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stalled {
		return
	}
	e.framesSinceMotion++
	if e.framesSinceMotion >= e.cfg.MaxStallImg {
		log.Debug("video encoder stalling after idle threshold", "frames_since_motion", e.framesSinceMotion)
		e.stalled = true
	}
}

// Feed implements spec.md §4.4 step 3: on a dirty tick, (re)creates the
// backend if stalled, then encodes frame (already colour-converted to the
// negotiated pixel format by the caller) and returns the drained packets.
func (e *Encoder) Feed(frame []byte) ([]Packet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stalled {
		if err := e.backend.Configure(e.cfg.Codec, e.cfg.Width, e.cfg.Height, e.cfg.PixelFormat, e.cfg.Options); err != nil {
			return nil, fmt.Errorf("video: configure backend: %w", err)
		}
		if e.cfg.InitialBPS > 0 {
			_ = e.backend.SetBitrate(e.cfg.InitialBPS)
		}
		e.stalled = false
		e.framesSinceMotion = 0
	}

	packets, err := e.backend.Encode(frame)
	if err != nil {
		return nil, fmt.Errorf("video: encode: %w", err)
	}
	return packets, nil
}

// NextPTS returns a monotonically increasing presentation timestamp.
func (e *Encoder) NextPTS() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	pts := e.nextPTS
	e.nextPTS++
	return pts
}

// Restart forces the encoder into the stalled state so the next Feed call
// rebuilds the backend context — used by the control socket's hot-reload
// signal. Resolution changes go through Resize instead.
func (e *Encoder) Restart(merge map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range merge {
		e.cfg.Options[k] = v
	}
	e.stalled = true
	e.framesSinceMotion = 0
}

func (e *Encoder) SetBitrate(bps int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.SetBitrate(bps)
}

func (e *Encoder) SetQuality(q QualityPreset) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.SetQuality(q)
}

func (e *Encoder) SetFPS(fps int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.SetFPS(fps)
}

func (e *Encoder) ForceKeyframe() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stalled {
		return nil
	}
	return e.backend.ForceKeyframe()
}

func (e *Encoder) BackendIsHardware() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.IsHardware()
}

func (e *Encoder) Resize(width, height int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Width, e.cfg.Height = width, height
	e.stalled = true
	e.framesSinceMotion = 0
}

func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.Close()
}
