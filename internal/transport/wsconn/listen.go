package wsconn

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"

	"github.com/meridian-rdp/core/internal/transport"
)

// Listener upgrades every inbound HTTP request on addr to a WebSocket and
// hands the result back as an already-framed transport.Conn, the same
// Accept shape vsock and webrtcconn use in place of net.Listener's raw
// net.Conn.
type Listener struct {
	httpLn  net.Listener
	srv     *http.Server
	connCh  chan acceptResult
	closing chan struct{}
}

type acceptResult struct {
	conn *transport.Conn
	err  error
}

// Listen binds addr and starts an HTTP server upgrading every request
// path to a WebSocket-framed session.
func Listen(addr string, tlsConfig *tls.Config) (*Listener, error) {
	var httpLn net.Listener
	var err error
	if tlsConfig != nil {
		httpLn, err = tls.Listen("tcp", addr, tlsConfig)
	} else {
		httpLn, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("wsconn: listen %s: %w", addr, err)
	}

	l := &Listener{
		httpLn:  httpLn,
		connCh:  make(chan acceptResult),
		closing: make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handleUpgrade)
	l.srv = &http.Server{Handler: mux}
	go l.srv.Serve(httpLn)
	return l, nil
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	tc, err := Upgrade(w, r)
	select {
	case l.connCh <- acceptResult{tc, err}:
	case <-l.closing:
		if tc != nil {
			tc.Close()
		}
	}
}

// Accept blocks until the next WebSocket upgrade completes, or returns an
// error once Close has been called.
func (l *Listener) Accept() (*transport.Conn, error) {
	select {
	case res := <-l.connCh:
		return res.conn, res.err
	case <-l.closing:
		return nil, fmt.Errorf("wsconn: listener closed")
	}
}

// Close stops accepting new upgrades and shuts down the HTTP server.
func (l *Listener) Close() error {
	close(l.closing)
	return l.srv.Close()
}
