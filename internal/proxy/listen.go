package proxy

import (
	"context"
	"net"
	"os"
	"os/exec"

	"github.com/meridian-rdp/core/internal/transport"
)

// Serve accepts downstream connections from ln until ctx is cancelled,
// proxying each one on its own goroutine. Mirrors server.Serve's
// one-goroutine-per-session accept loop.
func Serve(ctx context.Context, ln net.Listener, cfg Config) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		rawConn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		remoteAddr := rawConn.RemoteAddr().String()
		connCfg := cfg
		if cfg.AuthenticatorsForConn != nil {
			connCfg.Authenticators = cfg.AuthenticatorsForConn(rawConn)
		}
		down := transport.New(rawConn)
		go func() {
			defer down.Close()
			sess, err := Accept(down, connCfg, remoteAddr)
			if err != nil {
				log.Warn("proxy setup failed", "remote", remoteAddr, "error", err)
				return
			}
			log.Info("proxy session started", "remote", remoteAddr)
			if err := sess.Run(ctx); err != nil {
				log.Info("proxy session ended", "remote", remoteAddr, "error", err)
			}
		}()
	}
}

// FramedListener is satisfied by listeners whose Accept already returns a
// framed transport.Conn instead of a raw net.Conn — ws and webrtc
// downstream listeners, same shape rolesetup.FramedListener uses.
type FramedListener interface {
	Accept() (*transport.Conn, error)
	Close() error
}

// ServeFramed is Serve for a downstream listener that already hands back
// framed Conns, so it skips the transport.New(rawConn) wrapping step.
func ServeFramed(ctx context.Context, ln FramedListener, cfg Config) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		down, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			defer down.Close()
			sess, err := Accept(down, cfg, "")
			if err != nil {
				log.Warn("proxy setup failed", "error", err)
				return
			}
			log.Info("proxy session started")
			if err := sess.Run(ctx); err != nil {
				log.Info("proxy session ended", "error", err)
			}
		}()
	}
}

// DialCommand builds a Config.Dial that launches cmd as a child process
// and treats its stdio as the upstream transport, for --proxycommand.
func DialCommand(name string, args ...string) func() (*transport.Conn, error) {
	return func() (*transport.Conn, error) {
		cmd := exec.Command(name, args...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return transport.New(transport.NewPipeStream(stdout, stdin)), nil
	}
}

// DialTCP builds a Config.Dial that connects to addr over TCP, for the
// common case of proxying toward a real server reachable on the network.
func DialTCP(addr string) func() (*transport.Conn, error) {
	return func() (*transport.Conn, error) {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, err
		}
		return transport.New(conn), nil
	}
}
