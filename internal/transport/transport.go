// Package transport implements the framed, length-prefixed message channel
// that carries every protocol.Message between server, client and proxy
// roles on a single ordered byte stream.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/meridian-rdp/core/internal/protocol"
)

// MaxFrameLength is the largest accepted frame payload, per spec: a
// reader that observes a length greater than this fails the connection.
const MaxFrameLength = 100 * 1024 * 1024

// ErrProtocol is the sentinel wrapped by every framing/decoding failure.
var ErrProtocol = errors.New("transport: protocol error")

// ErrOversizeFrame is returned when a peer announces a frame length above
// MaxFrameLength.
var ErrOversizeFrame = fmt.Errorf("%w: oversize frame", ErrProtocol)

// Stream is the minimal byte-stream surface a backend must provide. Plain
// net.Conn, a TLS-wrapped net.Conn, a stdio pipe pair, and the wsconn/
// webrtcconn backends all satisfy it.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// Conn multiplexes protocol.Message send/recv over one Stream. The send
// side is serialized by a mutex (single-writer); the receive side has a
// single owner per spec.md's concurrency model and is not itself
// synchronized.
type Conn struct {
	stream Stream
	sendMu sync.Mutex

	bytesSent uint64
	bytesRecv uint64
	statsMu   sync.Mutex
}

// New wraps an already-established Stream (TCP, vsock, stdio, TLS, ws,
// webrtc datachannel, ...) as a framed message Conn.
func New(stream Stream) *Conn {
	return &Conn{stream: stream}
}

// Send serializes and writes one message, prefixed by its 8-byte
// big-endian length. Safe for concurrent callers; writes are mutex
// ordered.
func (c *Conn) Send(m *protocol.Message) error {
	payload, err := protocol.Marshal(m)
	if err != nil {
		return fmt.Errorf("transport: marshal %v: %w", m.Kind, err)
	}
	if len(payload) > MaxFrameLength {
		return ErrOversizeFrame
	}

	var header [8]byte
	binary.BigEndian.PutUint64(header[:], uint64(len(payload)))

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if _, err := c.stream.Write(header[:]); err != nil {
		return fmt.Errorf("transport: write header: %w", err)
	}
	if _, err := c.stream.Write(payload); err != nil {
		return fmt.Errorf("transport: write payload: %w", err)
	}

	c.statsMu.Lock()
	c.bytesSent += uint64(len(header) + len(payload))
	c.statsMu.Unlock()
	return nil
}

// Recv blocks until one full message has been read, or returns an error if
// the stream closed or a framing violation occurred. recv has a single
// owner; callers must not call Recv concurrently from multiple goroutines.
func (c *Conn) Recv() (*protocol.Message, error) {
	var header [8]byte
	if _, err := io.ReadFull(c.stream, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("transport: read header: %w", err)
	}
	length := binary.BigEndian.Uint64(header[:])
	if length > MaxFrameLength {
		return nil, ErrOversizeFrame
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.stream, payload); err != nil {
		return nil, fmt.Errorf("transport: read payload: %w", err)
	}

	c.statsMu.Lock()
	c.bytesRecv += uint64(len(header) + len(payload))
	c.statsMu.Unlock()

	m, err := protocol.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return m, nil
}

// Bytes reports cumulative bytes sent/received on this connection, for
// Stats reporting.
func (c *Conn) Bytes() (sent, recv uint64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.bytesSent, c.bytesRecv
}

// Close closes the underlying stream. Best-effort Bye should be sent by
// the caller before Close when tearing down gracefully.
func (c *Conn) Close() error {
	return c.stream.Close()
}

// CloseWithBye attempts to send a Bye message before closing, matching the
// failure model in spec.md §4.1: "Bye{reason=protocol_error} attempted
// best-effort, then the transport is closed."
func (c *Conn) CloseWithBye(reason string) error {
	_ = c.Send(&protocol.Message{Kind: protocol.KindBye, Bye: &protocol.Bye{Reason: reason}})
	return c.Close()
}
