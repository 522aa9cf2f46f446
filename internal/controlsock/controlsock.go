// Package controlsock implements spec.md §4.4's out-of-band control
// socket: a local-only listener used to signal the encoder to restart
// without going through the streaming transport. POSIX uses a
// Unix-domain socket; Windows uses a named pipe via go-winio, mirroring
// the teacher's sessionbroker IPC transport split.
package controlsock

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/meridian-rdp/core/internal/logging"
)

var log = logging.L("controlsock")

// Command is one line read from the control socket.
type Command struct {
	Name string
	Args []string
}

// Handler processes one Command and returns a one-line response.
type Handler func(Command) string

// Server accepts local connections and dispatches newline-delimited
// commands to a Handler, serving each accepted connection on its own
// goroutine (control traffic is low-volume and administrative, not part
// of the media path).
type Server struct {
	ln      net.Listener
	handler Handler

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Listen opens the platform control socket at path and starts serving in
// the background. Call Close to stop.
func Listen(path string, handler Handler) (*Server, error) {
	ln, err := listen(path)
	if err != nil {
		return nil, fmt.Errorf("controlsock: listen %s: %w", path, err)
	}
	s := &Server{ln: ln, handler: handler}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			log.Warn("control socket accept error", "error", err)
			return
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd := Command{Name: fields[0], Args: fields[1:]}
		resp := "ok"
		if s.handler != nil {
			resp = s.handler(cmd)
		}
		if _, err := conn.Write([]byte(resp + "\n")); err != nil {
			return
		}
	}
}

func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	err := s.ln.Close()
	s.wg.Wait()
	return err
}

// SendCommand dials path and sends a single command, returning the
// response line. Used by admin tooling and tests; the streaming roles
// themselves are the listening side.
func SendCommand(path string, cmd Command) (string, error) {
	conn, err := dial(path)
	if err != nil {
		return "", fmt.Errorf("controlsock: dial %s: %w", path, err)
	}
	defer conn.Close()

	line := cmd.Name
	if len(cmd.Args) > 0 {
		line += " " + strings.Join(cmd.Args, " ")
	}
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		return "", fmt.Errorf("controlsock: write: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("controlsock: read response: %w", err)
	}
	return "", fmt.Errorf("controlsock: no response")
}
