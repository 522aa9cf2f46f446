// Package session implements the handshake state machine shared by the
// server, client and proxy roles: version exchange, pluggable
// authentication, and codec/resolution/clipboard negotiation.
package session

import (
	"crypto/tls"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/meridian-rdp/core/internal/logging"
	"github.com/meridian-rdp/core/internal/protocol"
)

var log = logging.L("session")

// State is a node in the handshake/lifecycle state machine:
// INIT → HELLO_SENT → AUTH → NEGOTIATE → STREAMING → CLOSING → CLOSED.
type State int

const (
	StateInit State = iota
	StateHelloSent
	StateAuth
	StateNegotiate
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateHelloSent:
		return "HELLO_SENT"
	case StateAuth:
		return "AUTH"
	case StateNegotiate:
		return "NEGOTIATE"
	case StateStreaming:
		return "STREAMING"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Role identifies which end of the connection this Session record
// describes the peer as.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// ErrAuth is the sentinel wrapped by every authentication failure.
var ErrAuth = errors.New("session: authentication failed")

// ErrVersion is returned when Hello/ServerHello advertise incompatible
// protocol versions.
var ErrVersion = errors.New("session: protocol version mismatch")

// ErrNegotiate is returned when no common codec/pixel-format exists.
var ErrNegotiate = errors.New("session: negotiation failed")

// ProtoVersion is this build's wire protocol version.
const ProtoVersion = 1

// commonPixelFormats is the set any negotiated codec must support per
// spec.md §4.2's negotiation invariant.
var commonPixelFormats = []protocol.PixelFormat{
	protocol.PixelFormatYUV420P,
	protocol.PixelFormatYUV444P,
	protocol.PixelFormatNV12,
	protocol.PixelFormatRGBX8888,
}

// Session is the record describing one negotiated connection, per
// spec.md §3.
type Session struct {
	mu sync.RWMutex

	ID                string
	PeerRole          Role
	State             State
	Codec             string
	VideoW, VideoH    int32
	AudioRate         int
	ClipboardPolicy   protocol.ClipboardPolicy
	AllowPrint        bool
	TLSPeerIdentity   string
	AuthenticatedUser string
}

func New(peerRole Role) *Session {
	return &Session{ID: uuid.NewString(), PeerRole: peerRole, State: StateInit}
}

func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.Debug("session state transition", "session", s.ID, "from", s.State, "to", state)
	s.State = state
}

func (s *Session) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State
}

func (s *Session) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s
}

// PeerTLSIdentity extracts the leaf certificate's CommonName from a TLS
// connection state, for populating Session.TLSPeerIdentity after the
// framed transport's TLS handshake completes.
func PeerTLSIdentity(state *tls.ConnectionState) string {
	if state == nil || len(state.PeerCertificates) == 0 {
		return ""
	}
	return state.PeerCertificates[0].Subject.CommonName
}

func supportsCommonPixelFormat(formats []protocol.PixelFormat) bool {
	for _, want := range commonPixelFormats {
		for _, have := range formats {
			if want == have {
				return true
			}
		}
	}
	return false
}

func intersectCodecs(serverCodecs, clientCodecs []string) []string {
	clientSet := make(map[string]bool, len(clientCodecs))
	for _, c := range clientCodecs {
		clientSet[c] = true
	}
	var out []string
	for _, c := range serverCodecs {
		if clientSet[c] {
			out = append(out, c)
		}
	}
	return out
}
