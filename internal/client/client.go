// Package client composes the session, video, audio, input, and
// clipboard packages into the viewer side of one streaming connection:
// it drives ClientHandshake, decodes inbound frames into caller-supplied
// sinks, and turns local input into outbound wire messages while
// intercepting the three reserved hotkey chords locally.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/meridian-rdp/core/internal/clipboard"
	"github.com/meridian-rdp/core/internal/input"
	"github.com/meridian-rdp/core/internal/logging"
	"github.com/meridian-rdp/core/internal/protocol"
	"github.com/meridian-rdp/core/internal/session"
	"github.com/meridian-rdp/core/internal/stats"
	"github.com/meridian-rdp/core/internal/transport"
)

var log = logging.L("client")

// Config bundles everything needed to drive the viewer side of a
// connection. OnVideoFrame/OnAudioFrame/OnCursor render into the local
// UI; nil callbacks simply drop that message kind.
type Config struct {
	SupportedCodecs          []string
	ScreenHintW, ScreenHintH int32
	AudioWanted              bool
	ClipboardPolicyRequest   protocol.ClipboardPolicy
	Credential               session.ClientCredential

	InputCapturer     input.Capturer
	ClipboardProvider clipboard.Provider

	OnVideoFrame func(*protocol.VideoFrame)
	OnAudioFrame func(*protocol.AudioFrame)
	OnCursor     func(*protocol.Cursor)
	OnStats      func(*protocol.Stats)

	// NetworkSample, when set, is polled before each outbound Stats
	// message to report this client's measured RTT/loss to the server's
	// adaptive bitrate controller.
	NetworkSample     func() stats.NetworkSample
	StatsInterval     time.Duration
	InputPollInterval time.Duration
}

// Client is one negotiated, streaming viewer-side connection.
type Client struct {
	cfg  Config
	sess *session.Session
	tc   *transport.Conn

	chord input.ChordDetector
	clip  *clipboard.Sync

	statsShown bool
	statsMu    sync.Mutex

	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// Connect performs the client-side handshake over tc.
func Connect(tc *transport.Conn, cfg Config) (*Client, error) {
	sess, err := session.ClientHandshake(tc, session.ClientConfig{
		SupportedCodecs:        cfg.SupportedCodecs,
		ScreenHintW:            cfg.ScreenHintW,
		ScreenHintH:            cfg.ScreenHintH,
		AudioWanted:            cfg.AudioWanted,
		ClipboardPolicyRequest: cfg.ClipboardPolicyRequest,
		Credential:             cfg.Credential,
	})
	if err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg, sess: sess, tc: tc, done: make(chan struct{})}
	if cfg.ClipboardProvider != nil {
		c.clip = clipboard.NewSync(cfg.ClipboardProvider, sess.ClipboardPolicy, clipboard.DirClientToServer)
	}
	return c, nil
}

// Session returns the negotiated session record.
func (c *Client) Session() *session.Session { return c.sess }

// StatsVisible reports whether the reserved toggle-stats chord currently
// has the local stats overlay enabled.
func (c *Client) StatsVisible() bool {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.statsShown
}

// Run drives every worker until ctx is cancelled or the server
// disconnects.
func (c *Client) Run(ctx context.Context) error {
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

	if c.cfg.InputCapturer != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.inputLoop(ctx)
		}()
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
	cancel()
	c.stop()
	c.wg.Wait()
	return recvErr
}

func (c *Client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *Client) recvLoop(ctx context.Context) error {
	for {
		msg, err := c.tc.Recv()
		if err != nil {
			return err
		}
		switch msg.Kind {
		case protocol.KindVideoFrame:
			if c.cfg.OnVideoFrame != nil {
				c.cfg.OnVideoFrame(msg.VideoFrame)
			}
		case protocol.KindAudioFrame:
			if c.cfg.OnAudioFrame != nil {
				c.cfg.OnAudioFrame(msg.AudioFrame)
			}
		case protocol.KindCursor:
			if c.cfg.OnCursor != nil {
				c.cfg.OnCursor(msg.Cursor)
			}
		case protocol.KindStats:
			if c.cfg.OnStats != nil {
				c.cfg.OnStats(msg.Stats)
			}
		case protocol.KindClipboardData:
			if c.clip != nil && msg.ClipboardData != nil {
				if err := c.clip.ApplyRemote(contentFromWire(msg.ClipboardData), clipboard.DirServerToClient); err != nil {
					log.Debug("clipboard apply blocked", "error", err)
				}
			}
		case protocol.KindResolutionChange:
			if msg.ResolutionChange != nil {
				c.sess.VideoW, c.sess.VideoH = msg.ResolutionChange.W, msg.ResolutionChange.H
			}
		case protocol.KindBye:
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// inputLoop polls the local input capturer, intercepts reserved chords,
// and forwards everything else as wire messages.
func (c *Client) inputLoop(ctx context.Context) {
	interval := c.cfg.InputPollInterval
	if interval <= 0 {
		interval = 4 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			for _, ev := range c.cfg.InputCapturer.Poll() {
				c.handleLocalEvent(ev)
			}
		}
	}
}

func (c *Client) handleLocalEvent(ev input.Event) {
	if ev.Kind == input.EventKey {
		if chord := c.chord.Observe(ev.RawKeycode, ev.Down); chord != input.ChordNone {
			c.handleChord(chord)
			return
		}
	}

	var msg *protocol.Message
	switch ev.Kind {
	case input.EventKey:
		msg = &protocol.Message{Kind: protocol.KindKeyEvent, KeyEvent: &protocol.KeyEvent{RawKeycode: ev.RawKeycode, Down: ev.Down}}
	case input.EventPointerMotion:
		msg = &protocol.Message{Kind: protocol.KindPointerMotion, PointerMotion: &protocol.PointerMotion{X: ev.X, Y: ev.Y}}
	case input.EventPointerButton:
		msg = &protocol.Message{Kind: protocol.KindPointerButton, PointerButton: &protocol.PointerButton{Button: ev.Button, Down: ev.Down}}
	default:
		return
	}
	if err := c.tc.Send(msg); err != nil {
		log.Debug("failed to send input event", "error", err)
	}
}

func (c *Client) handleChord(chord input.Chord) {
	switch chord {
	case input.ChordReleaseGrab:
		log.Info("pointer grab released by hotkey")
	case input.ChordClipboardTrigger:
		if c.clip == nil {
			return
		}
		content, err := c.clip.TriggerPush()
		if err != nil {
			log.Warn("clipboard trigger push failed", "error", err)
			return
		}
		c.sendClipboard(content)
	case input.ChordToggleStats:
		c.statsMu.Lock()
		c.statsShown = !c.statsShown
		c.statsMu.Unlock()
	}
}

func (c *Client) sendClipboard(content clipboard.Content) {
	err := c.tc.Send(&protocol.Message{
		Kind: protocol.KindClipboardData,
		ClipboardData: &protocol.ClipboardData{
			MIME:  clipboard.ToWireContentType(content.Type),
			Bytes: clipboardBytes(content),
		},
	})
	if err != nil {
		log.Debug("failed to send clipboard data", "error", err)
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

func (c *Client) clipboardPollLoop(ctx context.Context) {
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
				log.Warn("clipboard poll failed", "error", err)
				continue
			}
			if !ok {
				continue
			}
			c.sendClipboard(content)
		}
	}
}

func (c *Client) statsLoop(ctx context.Context) {
	collector := stats.NewCollector()
	ticker := time.NewTicker(c.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if c.cfg.NetworkSample != nil {
				collector.UpdateNetwork(c.cfg.NetworkSample())
			}
			sent, recv := c.tc.Bytes()
			snap := collector.Snapshot(0, 0, sent, recv)
			if err := c.tc.Send(&protocol.Message{Kind: protocol.KindStats, Stats: &snap}); err != nil {
				log.Debug("failed to send stats", "error", err)
				return
			}
		}
	}
}
