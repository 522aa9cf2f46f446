//go:build linux

package transport

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// DialVsock connects to cid:port over AF_VSOCK. There is no vsock library
// anywhere in the retrieved reference corpus, so the raw syscalls are used
// directly via golang.org/x/sys/unix, already a dependency of this module.
func DialVsock(cid, port uint32) (*Conn, error) {
	fd, err := unix.Socket(unix.AF_VSOCK, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: vsock socket: %w", err)
	}
	sa := &unix.SockaddrVM{CID: cid, Port: port}
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: vsock connect: %w", err)
	}
	return New(newVsockStream(fd)), nil
}

// ListenVsock binds and listens on cid:port over AF_VSOCK, returning a
// VsockListener whose Accept yields framed Conns.
func ListenVsock(cid, port uint32) (*VsockListener, error) {
	fd, err := unix.Socket(unix.AF_VSOCK, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: vsock socket: %w", err)
	}
	sa := &unix.SockaddrVM{CID: cid, Port: port}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: vsock bind: %w", err)
	}
	if err := unix.Listen(fd, 16); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: vsock listen: %w", err)
	}
	return &VsockListener{fd: fd}, nil
}

// VsockListener accepts AF_VSOCK connections and wraps them as framed
// transport.Conn values.
type VsockListener struct {
	fd int
}

func (l *VsockListener) Accept() (*Conn, error) {
	nfd, _, err := unix.Accept(l.fd)
	if err != nil {
		return nil, fmt.Errorf("transport: vsock accept: %w", err)
	}
	return New(newVsockStream(nfd)), nil
}

func (l *VsockListener) Close() error {
	return unix.Close(l.fd)
}

// vsockStream adapts a raw AF_VSOCK file descriptor to the Stream
// interface via unix.Read/unix.Write on the descriptor, since there is no net.Conn
// implementation for AF_VSOCK in the standard library.
type vsockStream struct {
	fd int
}

func newVsockStream(fd int) *vsockStream {
	return &vsockStream{fd: fd}
}

func (s *vsockStream) Read(p []byte) (int, error) {
	n, err := unix.Read(s.fd, p)
	if err != nil {
		return n, fmt.Errorf("transport: vsock read: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (s *vsockStream) Write(p []byte) (int, error) {
	n, err := unix.Write(s.fd, p)
	if err != nil {
		return n, fmt.Errorf("transport: vsock write: %w", err)
	}
	return n, nil
}

func (s *vsockStream) Close() error {
	return unix.Close(s.fd)
}
