// Package audio implements frame-paced, freshness-preserving buffering
// between an OS audio capturer and the session transport. Real capture
// backends (WASAPI loopback, PulseAudio monitor, CoreAudio tap) are
// platform-specific collaborators outside this package's scope; it only
// defines the Capturer contract and the buffering policy around it.
package audio

import (
	"fmt"
	"sync"

	"github.com/meridian-rdp/core/internal/logging"
)

var log = logging.L("audio")

// FrameBytes is the size of one outbound audio frame: 160 bytes of
// 8kHz mono mu-law is 20ms of audio, matching the teacher's WASAPI
// capturer's frame cadence.
const FrameBytes = 160

// SampleRate is the fixed output rate negotiated over the wire.
const SampleRate = 8000

// Capturer captures system audio and delivers encoded frames to a
// callback. Start must not block; it returns once capture has begun.
type Capturer interface {
	Start(callback func([]byte)) error
	Stop()
}

// RingBuffer is a fixed-capacity FIFO of audio frames that drops the
// oldest frame on overflow instead of blocking the capturer, so a slow
// network never backs up into increasing audio latency.
type RingBuffer struct {
	mu       sync.Mutex
	frames   [][]byte
	capacity int
	head     int
	size     int
	dropped  uint64
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{frames: make([][]byte, capacity), capacity: capacity}
}

// Push appends a frame, dropping the oldest buffered frame if full.
func (r *RingBuffer) Push(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)

	idx := (r.head + r.size) % r.capacity
	if r.size == r.capacity {
		r.head = (r.head + 1) % r.capacity
		r.dropped++
	} else {
		r.size++
	}
	r.frames[idx] = cp
}

// Pop removes and returns the oldest frame, or ok=false if empty.
func (r *RingBuffer) Pop() (frame []byte, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size == 0 {
		return nil, false
	}
	frame = r.frames[r.head]
	r.frames[r.head] = nil
	r.head = (r.head + 1) % r.capacity
	r.size--
	return frame, true
}

// Len reports the number of buffered frames.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Dropped reports how many frames were discarded due to overflow.
func (r *RingBuffer) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Pipeline wires a Capturer's callback into a RingBuffer and exposes a
// Drain method for the session loop to pull paced output frames from,
// generalizing the teacher's direct encoder-callback wiring into a
// buffered, transport-agnostic shape.
type Pipeline struct {
	capturer Capturer
	buffer   *RingBuffer

	mu      sync.Mutex
	running bool
}

func NewPipeline(capturer Capturer, bufferFrames int) *Pipeline {
	return &Pipeline{capturer: capturer, buffer: NewRingBuffer(bufferFrames)}
}

func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("audio: pipeline already running")
	}
	if p.capturer == nil {
		return fmt.Errorf("audio: no capturer available on this platform")
	}
	if err := p.capturer.Start(p.buffer.Push); err != nil {
		return fmt.Errorf("audio: start capturer: %w", err)
	}
	p.running = true
	return nil
}

func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.capturer.Stop()
	p.running = false
	if dropped := p.buffer.Dropped(); dropped > 0 {
		log.Debug("audio frames dropped to overflow", "dropped", dropped)
	}
}

// Drain pops up to max buffered frames, oldest first, for the caller to
// frame into protocol.AudioFrame messages.
func (p *Pipeline) Drain(max int) [][]byte {
	out := make([][]byte, 0, max)
	for i := 0; i < max; i++ {
		frame, ok := p.buffer.Pop()
		if !ok {
			break
		}
		out = append(out, frame)
	}
	return out
}

func (p *Pipeline) BufferedFrames() int { return p.buffer.Len() }
