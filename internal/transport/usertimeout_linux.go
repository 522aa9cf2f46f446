//go:build linux

package transport

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// setUserTimeout sets TCP_USER_TIMEOUT so a dead peer is detected within
// roughly `interval` even without relying on keepalive probes alone.
func setUserTimeout(tc *net.TCPConn, interval time.Duration) error {
	raw, err := tc.SyscallConn()
	if err != nil {
		return fmt.Errorf("transport: syscall conn: %w", err)
	}
	ms := int(interval / time.Millisecond)
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, ms)
	})
	if err != nil {
		return fmt.Errorf("transport: control: %w", err)
	}
	if sockErr != nil {
		return fmt.Errorf("transport: set TCP_USER_TIMEOUT: %w", sockErr)
	}
	return nil
}
