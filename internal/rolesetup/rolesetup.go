// Package rolesetup turns a loaded config.Config into the concrete
// session/transport collaborators (TLS configs, authenticators,
// credentials, dialers, listeners) that cmd/rdp-server, cmd/rdp-client
// and cmd/rdp-proxy all need, so that wiring logic lives in one place
// instead of being repeated across the three entrypoints.
package rolesetup

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/meridian-rdp/core/internal/config"
	"github.com/meridian-rdp/core/internal/mtls"
	"github.com/meridian-rdp/core/internal/protocol"
	"github.com/meridian-rdp/core/internal/session"
	"github.com/meridian-rdp/core/internal/transport"
	"github.com/meridian-rdp/core/internal/transport/webrtcconn"
	"github.com/meridian-rdp/core/internal/transport/wsconn"
)

// ParseClipboardPolicy maps config.go's short wire names onto the
// protocol enum; config.Validate already rejects anything else.
func ParseClipboardPolicy(s string) protocol.ClipboardPolicy {
	switch s {
	case "srv_to_cli":
		return protocol.ClipboardServerToClient
	case "cli_to_srv":
		return protocol.ClipboardClientToServer
	case "both":
		return protocol.ClipboardBoth
	case "trigger":
		return protocol.ClipboardTrigger
	default:
		return protocol.ClipboardOff
	}
}

// Codecs returns the single negotiable codec this process offers/wants,
// named from cfg.Codec and assuming the YUV420P pipeline colour
// conversion every Pipeline performs.
func Codecs(cfg *config.Config) []session.CodecCapability {
	return []session.CodecCapability{{
		Name:         cfg.Codec,
		PixelFormats: []protocol.PixelFormat{protocol.PixelFormatYUV420P},
	}}
}

func readFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("rolesetup: read %s: %w", path, err)
	}
	return string(b), nil
}

// ServerTLSConfig builds a server-side TLS config from cfg's cert/key/CA
// paths, or returns nil for plaintext transport.
func ServerTLSConfig(cfg *config.Config) (*tls.Config, error) {
	certPEM, err := readFile(cfg.TLSCertFile)
	if err != nil {
		return nil, err
	}
	keyPEM, err := readFile(cfg.TLSKeyFile)
	if err != nil {
		return nil, err
	}
	caPEM, err := readFile(cfg.TLSCAFile)
	if err != nil {
		return nil, err
	}
	return mtls.BuildServerTLSConfig(certPEM, keyPEM, caPEM, mtls.AllowlistRule{})
}

// ClientTLSConfig builds a client-side TLS config from cfg's cert/key/CA
// paths, or returns nil for plaintext transport.
func ClientTLSConfig(cfg *config.Config) (*tls.Config, error) {
	certPEM, err := readFile(cfg.TLSCertFile)
	if err != nil {
		return nil, err
	}
	keyPEM, err := readFile(cfg.TLSKeyFile)
	if err != nil {
		return nil, err
	}
	caPEM, err := readFile(cfg.TLSCAFile)
	if err != nil {
		return nil, err
	}
	return mtls.BuildClientTLSConfig(certPEM, keyPEM, caPEM, cfg.TLSServerName)
}

// ServerAuthenticators builds the single configured authenticator, or
// none for auth_method="" (open access, trusted-network deployments).
func ServerAuthenticators(cfg *config.Config) ([]session.ServerAuthenticator, error) {
	switch cfg.AuthMethod {
	case "":
		return nil, nil
	case "tls":
		// The peer identity is filled in per-connection from the verified
		// client certificate's CommonName once the TLS handshake
		// completes; see PerConnectionTLSAuthenticator below.
		return []session.ServerAuthenticator{session.NewTLSAuthenticator("")}, nil
	case "password":
		raw, err := readFile(cfg.PasswordHashFile)
		if err != nil {
			return nil, err
		}
		user, hash, ok := strings.Cut(strings.TrimSpace(raw), ":")
		if !ok {
			return nil, fmt.Errorf("rolesetup: password_hash_file must contain \"user:bcrypt_hash\"")
		}
		return []session.ServerAuthenticator{session.NewPasswordAuthenticator(user, hash)}, nil
	case "ticket":
		key, err := readFile(cfg.TicketKeyFile)
		if err != nil {
			return nil, err
		}
		return []session.ServerAuthenticator{session.NewTicketAuthenticator([]byte(strings.TrimSpace(key)), time.Hour)}, nil
	default:
		return nil, fmt.Errorf("rolesetup: unknown auth_method %q", cfg.AuthMethod)
	}
}

// PerConnectionTLSAuthenticator rebuilds a TLS authenticator carrying the
// verified peer certificate's CommonName, once available from the
// accepted *tls.Conn. Call this per connection instead of
// ServerAuthenticators when auth_method is "tls".
func PerConnectionTLSAuthenticator(conn net.Conn) session.ServerAuthenticator {
	identity := ""
	if tc, ok := conn.(*tls.Conn); ok {
		state := tc.ConnectionState()
		if len(state.PeerCertificates) > 0 {
			identity = state.PeerCertificates[0].Subject.CommonName
		}
	}
	return session.NewTLSAuthenticator(identity)
}

// ClientCredential builds the credential matching cfg.AuthMethod, using
// password as the plaintext password or pre-minted ticket where applicable.
func ClientCredential(cfg *config.Config, password string) (session.ClientCredential, error) {
	switch cfg.AuthMethod {
	case "", "tls":
		return session.TLSCredential{}, nil
	case "password":
		return session.PasswordCredential{Password: password}, nil
	case "ticket":
		return session.TicketCredential{Ticket: password}, nil
	default:
		return nil, fmt.Errorf("rolesetup: unknown auth_method %q", cfg.AuthMethod)
	}
}

// Listen opens a net.Listener for cfg's transport/listen_addr, applying
// TLS when tlsConfig is non-nil. Only tcp is supported here; vsock, ws,
// and webrtc all hand back an already-framed Conn from Accept rather than
// a raw net.Conn, so they go through ListenFramed and the cmd
// entrypoint's own accept loop instead (see IsFramedTransport).
func Listen(cfg *config.Config, tlsConfig *tls.Config) (net.Listener, error) {
	keepAlive := time.Duration(cfg.KeepAliveSeconds) * time.Second
	return transport.ListenTCP(cfg.ListenAddr, keepAlive, tlsConfig)
}

// FramedListener is satisfied by listeners whose Accept already returns a
// framed transport.Conn instead of a raw net.Conn.
type FramedListener interface {
	Accept() (*transport.Conn, error)
	Close() error
}

// IsFramedTransport reports whether cfg.Transport needs ListenFramed
// (and a FramedListener accept loop) instead of Listen.
func IsFramedTransport(cfg *config.Config) bool {
	switch cfg.Transport {
	case "vsock", "ws", "webrtc":
		return true
	default:
		return false
	}
}

// ListenFramed opens the FramedListener for cfg's transport when
// IsFramedTransport reports true.
func ListenFramed(cfg *config.Config, tlsConfig *tls.Config) (FramedListener, error) {
	switch cfg.Transport {
	case "vsock":
		return transport.ListenVsock(cfg.VsockCID, cfg.VsockPort)
	case "ws":
		return wsconn.Listen(cfg.ListenAddr, tlsConfig)
	case "webrtc":
		return webrtcconn.Listen(cfg.ListenAddr)
	default:
		return nil, fmt.Errorf("rolesetup: %q is not a framed transport", cfg.Transport)
	}
}

// Dial connects to cfg's server_addr over cfg's configured transport.
func Dial(cfg *config.Config, tlsConfig *tls.Config) (*transport.Conn, error) {
	switch cfg.Transport {
	case "vsock":
		return transport.DialVsock(cfg.VsockCID, cfg.VsockPort)
	case "stdio":
		return transport.NewStdio(), nil
	case "ws":
		scheme := "ws"
		if tlsConfig != nil {
			scheme = "wss"
		}
		return wsconn.DialConfig(fmt.Sprintf("%s://%s/", scheme, cfg.ServerAddr), tlsConfig)
	case "webrtc":
		return webrtcconn.Dial(cfg.ServerAddr)
	default:
		keepAlive := time.Duration(cfg.KeepAliveSeconds) * time.Second
		return transport.DialTCP(cfg.ServerAddr, keepAlive, tlsConfig)
	}
}
