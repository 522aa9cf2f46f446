package main

import (
	"context"

	"github.com/meridian-rdp/core/internal/rolesetup"
	"github.com/meridian-rdp/core/internal/server"
)

// serveConnListener mirrors server.Serve's one-goroutine-per-session
// accept loop for a listener that hands back already-framed Conns
// (vsock, ws, webrtc) instead of net.Listener's raw net.Conn.
func serveConnListener(ctx context.Context, ln rolesetup.FramedListener, cfg server.Config, transportName string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		tc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			conn, err := server.Accept(tc, cfg, transportName)
			if err != nil {
				log.Warn("session setup failed", "error", err)
				tc.Close()
				return
			}
			if err := conn.Serve(ctx); err != nil {
				log.Info("session ended", "error", err)
			}
			tc.Close()
		}()
	}
}
