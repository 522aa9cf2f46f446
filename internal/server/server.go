// Package server composes the session, video, audio, input, clipboard,
// and stats packages into the host side of one streaming connection,
// generalizing the teacher's per-session worker composition
// (session_stream.go's startStreaming: sync.Once, a WaitGroup of
// goroutines, and a done channel) from a WebRTC desktop session to a
// framed transport.Conn.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meridian-rdp/core/internal/audio"
	"github.com/meridian-rdp/core/internal/clipboard"
	"github.com/meridian-rdp/core/internal/input"
	"github.com/meridian-rdp/core/internal/logging"
	"github.com/meridian-rdp/core/internal/protocol"
	"github.com/meridian-rdp/core/internal/session"
	"github.com/meridian-rdp/core/internal/stats"
	"github.com/meridian-rdp/core/internal/transport"
	"github.com/meridian-rdp/core/internal/video"
)

var log = logging.L("server")

// active tracks every live Conn so a control-socket restart_encoder
// command can reach whichever sessions happen to be streaming right now.
var active sync.Map // session ID (string) -> *Conn

// Config bundles everything needed to drive one incoming connection.
// Every backend (VideoSource, Injector, ClipboardProvider, AudioCapturer)
// is a platform collaborator supplied by the cmd/rdp-server entrypoint;
// nil disables the corresponding worker.
type Config struct {
	Codecs         []session.CodecCapability
	Authenticators []session.ServerAuthenticator
	RateLimiter    *session.AuthRateLimiter

	// AuthenticatorsForConn, when set, overrides Authenticators on a
	// per-connection basis. Used for auth_method=tls, where the
	// authenticator must carry the CommonName out of that specific
	// connection's verified peer certificate rather than a fixed one
	// built once at startup.
	AuthenticatorsForConn func(net.Conn) []session.ServerAuthenticator

	VideoSource  video.FrameSource
	EncoderCfg   video.EncoderConfig
	AdaptiveCfg  video.AdaptiveConfig // Encoder field is filled in per-connection
	InitialFPS   int
	MinFPS       int
	MaxFPS       int

	Injector          input.Injector
	ClipboardProvider clipboard.Provider
	ClipboardPolicy   protocol.ClipboardPolicy
	AllowPrint        bool

	AudioCapturer audio.Capturer
	AudioRate     int

	StatsInterval time.Duration
}

// Conn is one accepted, handshaken streaming connection and its workers.
type Conn struct {
	cfg  Config
	sess *session.Session
	tc   *transport.Conn

	pressed  *input.PressedKeys
	clip     *clipboard.Sync
	pipeline *video.Pipeline
	encoder  *video.Encoder
	adaptive *video.AdaptiveBitrate
	audioPL  *audio.Pipeline
	collect  *stats.Collector

	framesSent uint64

	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// Accept performs the server-side handshake on tc and, on success,
// returns a Conn ready for Serve. remoteAddr feeds RateLimiter and the
// logging context.
func Accept(tc *transport.Conn, cfg Config, remoteAddr string) (*Conn, error) {
	screenW, screenH := defaultResolution(cfg)
	scfg := session.ServerConfig{
		Codecs:          cfg.Codecs,
		Authenticators:  cfg.Authenticators,
		VideoW:          screenW,
		VideoH:          screenH,
		AudioRate:       cfg.AudioRate,
		ClipboardPolicy: cfg.ClipboardPolicy,
		AllowPrint:      cfg.AllowPrint,
		RateLimiter:     cfg.RateLimiter,
		RemoteAddr:      remoteAddr,
	}
	sess, err := session.ServerHandshake(tc, scfg)
	if err != nil {
		return nil, fmt.Errorf("server: handshake: %w", err)
	}

	encCfg := cfg.EncoderCfg
	encCfg.Width, encCfg.Height = int(sess.VideoW), int(sess.VideoH)
	encoder, err := video.NewEncoder(encCfg)
	if err != nil {
		return nil, fmt.Errorf("server: construct encoder: %w", err)
	}

	c := &Conn{
		cfg:     cfg,
		sess:    sess,
		tc:      tc,
		pressed: input.NewPressedKeys(),
		encoder: encoder,
		collect: stats.NewCollector(),
		done:    make(chan struct{}),
	}

	if cfg.ClipboardProvider != nil {
		c.clip = clipboard.NewSync(cfg.ClipboardProvider, sess.ClipboardPolicy, clipboard.DirServerToClient)
	}

	if cfg.AdaptiveCfg.MaxBitrate > 0 {
		acfg := cfg.AdaptiveCfg
		acfg.Encoder = encoder
		adaptive, err := video.NewAdaptiveBitrate(acfg)
		if err != nil {
			return nil, fmt.Errorf("server: construct adaptive bitrate: %w", err)
		}
		c.adaptive = adaptive
	}

	if cfg.VideoSource != nil {
		pipeline, err := video.NewPipeline(video.PipelineConfig{
			Source:     cfg.VideoSource,
			Encoder:    encoder,
			Adaptive:   c.adaptive,
			InitialFPS: cfg.InitialFPS,
			MinFPS:     cfg.MinFPS,
			MaxFPS:     cfg.MaxFPS,
			Sink:       c.sendVideoFrame,
		})
		if err != nil {
			return nil, fmt.Errorf("server: construct pipeline: %w", err)
		}
		c.pipeline = pipeline
	}

	if cfg.AudioCapturer != nil {
		c.audioPL = audio.NewPipeline(cfg.AudioCapturer, 50)
	}

	active.Store(sess.ID, c)
	return c, nil
}

// RestartActiveEncoders forces every currently streaming connection's
// encoder to emit a fresh keyframe on its next Feed, merging extraCfg into
// its backend options first. Driven by the control socket's
// restart_encoder command (see cmd/rdp-server's controlsock wiring).
func RestartActiveEncoders(extraCfg map[string]string) int {
	n := 0
	active.Range(func(_, v any) bool {
		c := v.(*Conn)
		c.encoder.Restart(extraCfg)
		n++
		return true
	})
	return n
}

// defaultResolution reports the capture size to negotiate before the
// first frame is available; Resize messages adjust it once streaming
// begins. cfg.EncoderCfg's dimensions, if pre-set by the caller, take
// precedence over the 1080p fallback.
func defaultResolution(cfg Config) (int32, int32) {
	if cfg.EncoderCfg.Width > 0 && cfg.EncoderCfg.Height > 0 {
		return int32(cfg.EncoderCfg.Width), int32(cfg.EncoderCfg.Height)
	}
	return 1920, 1080
}

// Serve runs every worker for this connection until ctx is cancelled or
// the peer disconnects, then tears everything down and releases any keys
// still held, per the pressed-keys-empty-at-disconnect invariant.
func (c *Conn) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// recvLoop blocks in Recv with no context awareness; force it to
	// unblock on cancellation by closing the transport, same as the
	// peer disconnecting.
	go func() {
		select {
		case <-ctx.Done():
			c.tc.Close()
		case <-c.done:
		}
	}()

	if c.pipeline != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.pipeline.Run(ctx); err != nil && ctx.Err() == nil {
				log.Warn("video pipeline stopped", "session", c.sess.ID, "error", err)
			}
		}()
	}

	if c.audioPL != nil {
		if err := c.audioPL.Start(); err != nil {
			log.Warn("audio pipeline failed to start", "session", c.sess.ID, "error", err)
		} else {
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.audioDrainLoop(ctx)
			}()
		}
	}

	if c.clip != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.clipboardPollLoop(ctx)
		}()
	}

	if c.cfg.StatsInterval > 0 {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.statsLoop(ctx)
		}()
	}

	recvErr := c.recvLoop(ctx)

	active.Delete(c.sess.ID)
	cancel()
	c.stop()
	if err := c.pressed.ReleaseAll(c.cfg.Injector); err != nil {
		log.Warn("failed to release all pressed keys on disconnect", "session", c.sess.ID, "error", err)
	}
	c.wg.Wait()
	if c.encoder != nil {
		_ = c.encoder.Close()
	}
	return recvErr
}

func (c *Conn) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		if c.pipeline != nil {
			c.pipeline.Stop()
		}
		if c.audioPL != nil {
			c.audioPL.Stop()
		}
	})
}

func (c *Conn) sendVideoFrame(pkt video.Packet, regions []protocol.Rect, pts uint64) {
	err := c.tc.Send(&protocol.Message{
		Kind: protocol.KindVideoFrame,
		VideoFrame: &protocol.VideoFrame{
			EncodedBytes: pkt.Data,
			Width:        c.sess.VideoW,
			Height:       c.sess.VideoH,
			PTS:          pts,
			Keyframe:     pkt.Keyframe,
			DirtyRegions: regions,
		},
	})
	if err != nil {
		log.Debug("failed to send video frame", "session", c.sess.ID, "error", err)
		return
	}
	atomic.AddUint64(&c.framesSent, 1)
}

func (c *Conn) audioDrainLoop(ctx context.Context) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	var pts uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			for _, frame := range c.audioPL.Drain(4) {
				err := c.tc.Send(&protocol.Message{
					Kind: protocol.KindAudioFrame,
					AudioFrame: &protocol.AudioFrame{
						EncodedBytes: frame,
						PTS:          pts,
						SampleCount:  uint32(len(frame)),
					},
				})
				pts++
				if err != nil {
					log.Debug("failed to send audio frame", "session", c.sess.ID, "error", err)
					return
				}
			}
		}
	}
}

func (c *Conn) clipboardPollLoop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			content, ok, err := c.clip.PollLocalChange()
			if err != nil {
				log.Warn("clipboard poll failed", "session", c.sess.ID, "error", err)
				continue
			}
			if !ok {
				continue
			}
			c.sendClipboard(content)
		}
	}
}

func (c *Conn) sendClipboard(content clipboard.Content) {
	err := c.tc.Send(&protocol.Message{
		Kind: protocol.KindClipboardData,
		ClipboardData: &protocol.ClipboardData{
			MIME:  clipboard.ToWireContentType(content.Type),
			Bytes: clipboardBytes(content),
		},
	})
	if err != nil {
		log.Debug("failed to send clipboard data", "session", c.sess.ID, "error", err)
	}
}

func clipboardBytes(content clipboard.Content) []byte {
	switch content.Type {
	case clipboard.ContentTypeText:
		return []byte(content.Text)
	case clipboard.ContentTypeRTF:
		return content.RTF
	default:
		return content.Image
	}
}

func contentFromWire(d *protocol.ClipboardData) clipboard.Content {
	t := clipboard.FromWireContentType(d.MIME)
	c := clipboard.Content{Type: t}
	switch t {
	case clipboard.ContentTypeText:
		c.Text = string(d.Bytes)
	case clipboard.ContentTypeRTF:
		c.RTF = d.Bytes
	default:
		c.Image = d.Bytes
	}
	return c
}

func (c *Conn) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.StatsInterval)
	defer ticker.Stop()
	var frames, bitBits stats.RateCounter
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			sent, recv := c.tc.Bytes()
			fps := frames.Sample(atomic.LoadUint64(&c.framesSent))
			bps := bitBits.Sample(sent * 8)
			snap := c.collect.Snapshot(fps, uint64(bps), sent, recv)
			if err := c.tc.Send(&protocol.Message{Kind: protocol.KindStats, Stats: &snap}); err != nil {
				log.Debug("failed to send stats", "session", c.sess.ID, "error", err)
				return
			}
		}
	}
}

func (c *Conn) recvLoop(ctx context.Context) error {
	for {
		msg, err := c.tc.Recv()
		if err != nil {
			return err
		}
		if err := c.dispatch(msg); err != nil {
			log.Warn("failed to apply inbound message", "session", c.sess.ID, "kind", msg.Kind, "error", err)
		}
		if msg.Kind == protocol.KindBye {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (c *Conn) dispatch(msg *protocol.Message) error {
	switch msg.Kind {
	case protocol.KindKeyEvent:
		if c.cfg.Injector == nil || msg.KeyEvent == nil {
			return nil
		}
		return c.pressed.Apply(c.cfg.Injector, msg.KeyEvent.RawKeycode, msg.KeyEvent.Down)
	case protocol.KindPointerMotion:
		if c.cfg.Injector == nil || msg.PointerMotion == nil {
			return nil
		}
		return c.cfg.Injector.InjectPointerMotion(msg.PointerMotion.X, msg.PointerMotion.Y)
	case protocol.KindPointerButton:
		if c.cfg.Injector == nil || msg.PointerButton == nil {
			return nil
		}
		return c.cfg.Injector.InjectPointerButton(msg.PointerButton.Button, msg.PointerButton.Down)
	case protocol.KindClipboardData:
		if c.clip == nil || msg.ClipboardData == nil {
			return nil
		}
		return c.clip.ApplyRemote(contentFromWire(msg.ClipboardData), clipboard.DirClientToServer)
	case protocol.KindClipboardRequest:
		if c.clip == nil {
			return nil
		}
		content, err := c.clip.TriggerPush()
		if err != nil {
			return err
		}
		c.sendClipboard(content)
		return nil
	case protocol.KindStats:
		if c.adaptive == nil || msg.Stats == nil {
			return nil
		}
		c.adaptive.Update(time.Duration(msg.Stats.RTTMillis*float64(time.Millisecond)), msg.Stats.PacketLoss)
		return nil
	case protocol.KindResize:
		if msg.Resize == nil {
			return nil
		}
		c.sess.VideoW, c.sess.VideoH = msg.Resize.W, msg.Resize.H
		if c.pipeline != nil {
			c.pipeline.Resize(int(msg.Resize.W), int(msg.Resize.H), int(msg.Resize.W)*4)
		}
		return nil
	default:
		return nil
	}
}
