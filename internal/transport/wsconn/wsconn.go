// Package wsconn adapts a gorilla/websocket connection to the
// transport.Stream interface, for browser-facing proxy endpoints.
package wsconn

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meridian-rdp/core/internal/transport"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Stream adapts *websocket.Conn binary messages to the byte-stream
// contract transport.Conn expects, buffering partial reads across
// WebSocket message boundaries since framing is message-oriented on the
// wire but transport.Conn expects a continuous byte stream.
type Stream struct {
	conn    *websocket.Conn
	readBuf []byte

	stopPing chan struct{}
}

// Dial connects to a ws:// or wss:// URL and returns it wrapped as a
// framed transport.Conn.
func Dial(url string) (*transport.Conn, error) {
	return DialConfig(url, nil)
}

// DialConfig is Dial with an explicit TLS config for wss:// URLs, so
// callers needing mutual TLS or a custom root pool aren't stuck with
// websocket.DefaultDialer's bare settings.
func DialConfig(url string, tlsConfig *tls.Config) (*transport.Conn, error) {
	dialer := websocket.Dialer{
		TLSClientConfig:  tlsConfig,
		HandshakeTimeout: 45 * time.Second,
	}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsconn: dial %s: %w", url, err)
	}
	return transport.New(newStream(conn)), nil
}

// Upgrade upgrades an inbound HTTP request to a WebSocket and returns it
// wrapped as a framed transport.Conn.
func Upgrade(w http.ResponseWriter, r *http.Request) (*transport.Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("wsconn: upgrade: %w", err)
	}
	return transport.New(newStream(conn)), nil
}

func newStream(conn *websocket.Conn) *Stream {
	s := &Stream{conn: conn, stopPing: make(chan struct{})}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go s.pingLoop()
	return s
}

func (s *Stream) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopPing:
			return
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Read implements io.Reader by draining one WebSocket binary message at a
// time into an internal buffer.
func (s *Stream) Read(p []byte) (int, error) {
	for len(s.readBuf) == 0 {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("wsconn: read: %w", err)
		}
		s.readBuf = data
	}
	n := copy(p, s.readBuf)
	s.readBuf = s.readBuf[n:]
	return n, nil
}

// Write implements io.Writer by sending p as one binary WebSocket message.
func (s *Stream) Write(p []byte) (int, error) {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, fmt.Errorf("wsconn: write: %w", err)
	}
	return len(p), nil
}

// Close closes the underlying WebSocket connection.
func (s *Stream) Close() error {
	close(s.stopPing)
	return s.conn.Close()
}
