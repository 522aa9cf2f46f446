// Package proxy implements the middlebox role: it terminates one
// streaming session as a server, re-originates a second session as a
// client toward the real server, and pumps messages between the two —
// transcoding video frames when the two legs negotiate different codecs.
// Structurally this is a back-to-back pair of the session package's two
// handshake halves with one forwarding worker per direction, grounded in
// the same goroutine-per-direction shape as server.Conn/client.Client.
package proxy

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/meridian-rdp/core/internal/logging"
	"github.com/meridian-rdp/core/internal/protocol"
	"github.com/meridian-rdp/core/internal/session"
	"github.com/meridian-rdp/core/internal/transport"
	"github.com/meridian-rdp/core/internal/video"
)

var log = logging.L("proxy")

// Config parameterizes one proxied session. Dial connects (and performs
// any transport-level handshake, e.g. TLS) to the real server, returning
// a framed Conn ready for ClientHandshake.
type Config struct {
	Codecs          []session.CodecCapability
	Authenticators  []session.ServerAuthenticator
	RateLimiter     *session.AuthRateLimiter
	ClipboardPolicy protocol.ClipboardPolicy
	AllowPrint      bool
	VideoW, VideoH  int32 // defaults to 1920x1080 if unset

	// AuthenticatorsForConn, when set, overrides Authenticators for the
	// downstream leg on a per-connection basis (see server.Config's field
	// of the same name).
	AuthenticatorsForConn func(net.Conn) []session.ServerAuthenticator

	Dial               func() (*transport.Conn, error)
	UpstreamCodecs     []string
	UpstreamCredential session.ClientCredential

	// Transcode, when true and the two legs negotiate different codecs,
	// re-encodes forwarded video frames through TranscodeEncoderCfg
	// instead of passing EncodedBytes through unchanged.
	Transcode           bool
	TranscodeEncoderCfg video.EncoderConfig
}

// Session is one proxied connection: a downstream leg (the real client)
// and an upstream leg (the real server).
type Session struct {
	cfg  Config
	down *transport.Conn
	up   *transport.Conn

	downSess *session.Session
	upSess   *session.Session

	transcoder *video.Encoder

	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// Accept performs the downstream server-side handshake, dials upstream,
// performs the upstream client-side handshake, and returns a Session
// ready for Run. On any failure both legs are closed.
func Accept(down *transport.Conn, cfg Config, remoteAddr string) (*Session, error) {
	videoW, videoH := cfg.VideoW, cfg.VideoH
	if videoW == 0 || videoH == 0 {
		videoW, videoH = 1920, 1080
	}
	downSess, err := session.ServerHandshake(down, session.ServerConfig{
		Codecs:          cfg.Codecs,
		Authenticators:  cfg.Authenticators,
		ClipboardPolicy: cfg.ClipboardPolicy,
		AllowPrint:      cfg.AllowPrint,
		RateLimiter:     cfg.RateLimiter,
		RemoteAddr:      remoteAddr,
		VideoW:          videoW,
		VideoH:          videoH,
	})
	if err != nil {
		return nil, fmt.Errorf("proxy: downstream handshake: %w", err)
	}

	up, err := cfg.Dial()
	if err != nil {
		down.CloseWithBye("upstream_unreachable")
		return nil, fmt.Errorf("proxy: dial upstream: %w", err)
	}

	upSess, err := session.ClientHandshake(up, session.ClientConfig{
		SupportedCodecs:        cfg.UpstreamCodecs,
		ScreenHintW:            downSess.VideoW,
		ScreenHintH:            downSess.VideoH,
		ClipboardPolicyRequest: downSess.ClipboardPolicy,
		Credential:             cfg.UpstreamCredential,
	})
	if err != nil {
		up.Close()
		down.CloseWithBye("upstream_negotiate_failed")
		return nil, fmt.Errorf("proxy: upstream handshake: %w", err)
	}

	s := &Session{cfg: cfg, down: down, up: up, downSess: downSess, upSess: upSess, done: make(chan struct{})}

	if cfg.Transcode && downSess.Codec != upSess.Codec {
		encCfg := cfg.TranscodeEncoderCfg
		encCfg.Width, encCfg.Height = int(downSess.VideoW), int(downSess.VideoH)
		encCfg.Codec = downSess.Codec
		enc, err := video.NewEncoder(encCfg)
		if err != nil {
			up.Close()
			down.CloseWithBye("transcode_unavailable")
			return nil, fmt.Errorf("proxy: construct transcode encoder: %w", err)
		}
		s.transcoder = enc
	}

	return s, nil
}

// Run pumps messages in both directions until ctx is cancelled or either
// leg disconnects.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Both pumps block in Recv with no context awareness; force them to
	// unblock on cancellation by closing both legs, same as either peer
	// disconnecting.
	go func() {
		select {
		case <-ctx.Done():
			s.stop()
		case <-s.done:
		}
	}()

	errCh := make(chan error, 2)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		errCh <- s.pump(ctx, s.down, s.up, s.forwardClientToServer)
	}()
	go func() {
		defer s.wg.Done()
		errCh <- s.pump(ctx, s.up, s.down, s.forwardServerToClient)
	}()

	err := <-errCh
	cancel()
	s.stop()
	s.wg.Wait()
	if s.transcoder != nil {
		_ = s.transcoder.Close()
	}
	return err
}

func (s *Session) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.down.Close()
		s.up.Close()
	})
}

// forward is applied to each message read from src before it is written
// to dst, letting each direction customize transcoding/rewriting.
type forward func(msg *protocol.Message) (*protocol.Message, error)

func (s *Session) pump(ctx context.Context, src, dst *transport.Conn, fwd forward) error {
	for {
		msg, err := src.Recv()
		if err != nil {
			return err
		}
		out, err := fwd(msg)
		if err != nil {
			log.Warn("proxy: forwarding failed", "kind", msg.Kind, "error", err)
			continue
		}
		if out == nil {
			continue
		}
		if err := dst.Send(out); err != nil {
			return err
		}
		if msg.Kind == protocol.KindBye {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}
	}
}

// forwardClientToServer relays input/clipboard/stats from the real
// client upstream unchanged; handshake kinds never reach here since
// both legs' handshakes already completed before pumping starts.
func (s *Session) forwardClientToServer(msg *protocol.Message) (*protocol.Message, error) {
	return msg, nil
}

// forwardServerToClient relays media/clipboard/cursor/stats from the
// real server downstream, transcoding video frames when the two legs'
// negotiated codecs differ. The shipped reference Backend is a byte
// transparent stand-in for a real codec (see video.softwareBackend), so
// decoding upstream's EncodedBytes back to raw is a no-op here; feeding
// them straight into the downstream-facing Encoder is what "decode then
// re-encode with a different codec/options" reduces to against that
// backend, and a real hardware/software codec plugged in via
// video.RegisterBackend would decode for real before this Feed call.
func (s *Session) forwardServerToClient(msg *protocol.Message) (*protocol.Message, error) {
	if msg.Kind != protocol.KindVideoFrame || s.transcoder == nil || msg.VideoFrame == nil {
		return msg, nil
	}
	// EncodedBytes goes straight in undecoded; see the doc comment above.
	packets, err := s.transcoder.Feed(msg.VideoFrame.EncodedBytes)
	if err != nil {
		return nil, fmt.Errorf("proxy: transcode: %w", err)
	}
	if len(packets) == 0 {
		return nil, nil
	}
	pkt := packets[0]
	out := *msg
	vf := *msg.VideoFrame
	vf.EncodedBytes = pkt.Data
	vf.Keyframe = pkt.Keyframe
	out.VideoFrame = &vf
	return &out, nil
}
