//go:build windows

package controlsock

import (
	"net"

	"github.com/Microsoft/go-winio"
)

// pipeSecurity grants the local SYSTEM account and interactively logged
// in users access, matching the teacher's sessionbroker named-pipe ACL.
const pipeSecurity = "D:P(A;;GA;;;SY)(A;;GRGW;;;IU)"

func listen(path string) (net.Listener, error) {
	cfg := &winio.PipeConfig{
		SecurityDescriptor: pipeSecurity,
		InputBufferSize:    64 * 1024,
		OutputBufferSize:   64 * 1024,
	}
	return winio.ListenPipe(path, cfg)
}

func dial(path string) (net.Conn, error) {
	return winio.DialPipe(path, nil)
}
