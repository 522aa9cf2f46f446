//go:build !linux

package transport

import (
	"net"
	"time"
)

// setUserTimeout is a no-op on platforms without TCP_USER_TIMEOUT; the
// keepalive interval set by applyKeepAlive still applies.
func setUserTimeout(tc *net.TCPConn, interval time.Duration) error {
	return nil
}
