// Package webrtcconn adapts a pion/webrtc data channel to the
// transport.Stream interface, for NAT-traversed peer sessions.
package webrtcconn

import (
	"fmt"
	"io"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/meridian-rdp/core/internal/transport"
)

// DefaultICEServers mirrors the teacher's public-STUN default; callers
// should override via config for production deployments.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// Stream adapts a *webrtc.DataChannel's message-oriented delivery to the
// transport.Stream byte-stream contract, the same buffering approach
// wsconn.Stream uses for WebSocket messages.
type Stream struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	mu      sync.Mutex
	cond    *sync.Cond
	queue   [][]byte
	readBuf []byte
	closed  bool
	err     error
}

// NewStream wires onmessage/onclose handlers for dc and returns a Stream
// ready for use once dc's underlying connection is open.
func NewStream(pc *webrtc.PeerConnection, dc *webrtc.DataChannel) *Stream {
	s := &Stream{pc: pc, dc: dc}
	s.cond = sync.NewCond(&s.mu)

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.mu.Lock()
		s.queue = append(s.queue, msg.Data)
		s.cond.Signal()
		s.mu.Unlock()
	})
	dc.OnClose(func() {
		s.mu.Lock()
		s.closed = true
		s.err = io.EOF
		s.cond.Signal()
		s.mu.Unlock()
	})
	return s
}

// Wrap returns dc wired into a framed transport.Conn.
func Wrap(pc *webrtc.PeerConnection, dc *webrtc.DataChannel) *transport.Conn {
	return transport.New(NewStream(pc, dc))
}

func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	for len(s.readBuf) == 0 {
		if len(s.queue) > 0 {
			s.readBuf = s.queue[0]
			s.queue = s.queue[1:]
			break
		}
		if s.closed {
			err := s.err
			s.mu.Unlock()
			return 0, err
		}
		s.cond.Wait()
	}
	n := copy(p, s.readBuf)
	s.readBuf = s.readBuf[n:]
	s.mu.Unlock()
	return n, nil
}

func (s *Stream) Write(p []byte) (int, error) {
	if err := s.dc.Send(p); err != nil {
		return 0, fmt.Errorf("webrtcconn: send: %w", err)
	}
	return len(p), nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.err = io.EOF
	s.cond.Broadcast()
	s.mu.Unlock()

	dcErr := s.dc.Close()
	pcErr := s.pc.Close()
	if dcErr != nil {
		return fmt.Errorf("webrtcconn: close data channel: %w", dcErr)
	}
	if pcErr != nil {
		return fmt.Errorf("webrtcconn: close peer connection: %w", pcErr)
	}
	return nil
}
