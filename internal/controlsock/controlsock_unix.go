//go:build !windows

package controlsock

import (
	"net"
	"os"
)

func listen(path string) (net.Listener, error) {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	_ = os.Chmod(path, 0o600)
	return ln, nil
}

func dial(path string) (net.Conn, error) {
	return net.Dial("unix", path)
}
