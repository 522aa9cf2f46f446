package transport

import (
	"io"
	"os"
)

// stdioStream combines os.Stdin/os.Stdout into one Stream, for
// --proxycommand-launched pipe transports per spec.md §4.1/§6.
type stdioStream struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func (s *stdioStream) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *stdioStream) Write(p []byte) (int, error) { return s.out.Write(p) }
func (s *stdioStream) Close() error {
	inErr := s.in.Close()
	outErr := s.out.Close()
	if inErr != nil {
		return inErr
	}
	return outErr
}

// NewStdio wraps the process's stdin/stdout as a framed transport.Conn.
func NewStdio() *Conn {
	return New(&stdioStream{in: os.Stdin, out: os.Stdout})
}

// NewPipeStream wraps an arbitrary reader/writer/closer triple as a Stream,
// used by ProxyCommand-launched child processes where the pipes are
// obtained from os/exec rather than os.Stdin/os.Stdout directly.
func NewPipeStream(in io.ReadCloser, out io.WriteCloser) Stream {
	return &stdioStream{in: in, out: out}
}
