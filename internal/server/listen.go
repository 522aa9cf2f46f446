package server

import (
	"context"
	"net"

	"github.com/meridian-rdp/core/internal/transport"
)

// Serve accepts connections from ln until ctx is cancelled, handshaking
// and streaming each one on its own goroutine. A single misbehaving or
// slow peer never blocks new accepts, mirroring the teacher's
// one-goroutine-per-session model.
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
		tc := transport.New(rawConn)
		go func() {
			conn, err := Accept(tc, connCfg, remoteAddr)
			if err != nil {
				log.Warn("session setup failed", "remote", remoteAddr, "error", err)
				tc.Close()
				return
			}
			log.Info("session started", "remote", remoteAddr, "session", conn.sess.ID)
			if err := conn.Serve(ctx); err != nil {
				log.Info("session ended", "remote", remoteAddr, "session", conn.sess.ID, "error", err)
			}
			tc.Close()
		}()
	}
}
