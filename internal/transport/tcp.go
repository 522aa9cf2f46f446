package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// DialTCP connects to addr and sets SO_KEEPALIVE plus the per-connection
// keepalive interval, matching spec.md §4.1's "TCP (with SO_KEEPALIVE and
// OS-level user timeout set to the configured value)". tlsConfig may be
// nil for plaintext transport.
func DialTCP(addr string, keepAlive time.Duration, tlsConfig *tls.Config) (*Conn, error) {
	d := net.Dialer{KeepAlive: keepAlive}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tcp %s: %w", addr, err)
	}
	if err := applyKeepAlive(conn, keepAlive); err != nil {
		conn.Close()
		return nil, err
	}

	var stream Stream = conn
	if tlsConfig != nil {
		tc := tls.Client(conn, tlsConfig)
		if err := tc.Handshake(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: tls handshake: %w", err)
		}
		stream = tc
	}
	return New(stream), nil
}

// ListenTCP starts a TCP listener with the given keepalive and optional
// server-side TLS config (nil for plaintext).
func ListenTCP(addr string, keepAlive time.Duration, tlsConfig *tls.Config) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen tcp %s: %w", addr, err)
	}
	return &tcpListener{Listener: ln, keepAlive: keepAlive, tlsConfig: tlsConfig}, nil
}

type tcpListener struct {
	net.Listener
	keepAlive time.Duration
	tlsConfig *tls.Config
}

func (l *tcpListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if err := applyKeepAlive(conn, l.keepAlive); err != nil {
		conn.Close()
		return nil, err
	}
	if l.tlsConfig != nil {
		tc := tls.Server(conn, l.tlsConfig)
		if err := tc.Handshake(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: tls handshake: %w", err)
		}
		return tc, nil
	}
	return conn, nil
}

// AcceptConn wraps net.Listener.Accept, returning a framed Conn directly.
func AcceptConn(ln net.Listener) (*Conn, error) {
	conn, err := ln.Accept()
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

func applyKeepAlive(conn net.Conn, interval time.Duration) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if interval <= 0 {
		return tc.SetKeepAlive(false)
	}
	if err := tc.SetKeepAlive(true); err != nil {
		return fmt.Errorf("transport: set keepalive: %w", err)
	}
	if err := tc.SetKeepAlivePeriod(interval); err != nil {
		return fmt.Errorf("transport: set keepalive period: %w", err)
	}
	return setUserTimeout(tc, interval)
}
