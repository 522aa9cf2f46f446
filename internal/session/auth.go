package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-rdp/core/internal/protocol"
)

// ServerAuthenticator is implemented by each pluggable authentication
// method on the server side of the AUTH state (spec.md §4.2).
type ServerAuthenticator interface {
	// Method is the wire name advertised in ServerHello.AuthMethods.
	Method() string
	// Challenge optionally returns a challenge to send before the
	// client's AuthResponse; nil means the method has nothing to challenge
	// (e.g. TLS-mutual, where identity was already proven in the TLS
	// handshake itself), and the server then sends an empty AuthChallenge
	// naming the method.
	Challenge() *protocol.AuthChallenge
	// Verify inspects the client's AuthResponse (and the Challenge nonce,
	// if one was issued) and returns the authenticated identity string on
	// success.
	Verify(resp *protocol.AuthResponse, challenge *protocol.AuthChallenge) (identity string, err error)
}

// ClientCredential is implemented by each pluggable authentication method
// on the client side of the AUTH state.
type ClientCredential interface {
	Method() string
	// Respond builds the AuthResponse for an (optionally nil) challenge.
	Respond(challenge *protocol.AuthChallenge) (*protocol.AuthResponse, error)
}

// --- TLS-mutual ---

// TLSAuthenticator accepts any peer whose identity was already proven by
// the transport's mutual-TLS handshake; tlsIdentity is the peer
// certificate's CommonName, passed to NewTLSAuthenticator per connection.
type TLSAuthenticator struct {
	tlsIdentity string
}

func NewTLSAuthenticator(tlsIdentity string) *TLSAuthenticator {
	return &TLSAuthenticator{tlsIdentity: tlsIdentity}
}

func (a *TLSAuthenticator) Method() string                            { return "tls" }
func (a *TLSAuthenticator) Challenge() *protocol.AuthChallenge         { return nil }
func (a *TLSAuthenticator) Verify(_ *protocol.AuthResponse, _ *protocol.AuthChallenge) (string, error) {
	if a.tlsIdentity == "" {
		return "", fmt.Errorf("%w: no peer certificate presented", ErrAuth)
	}
	return a.tlsIdentity, nil
}

// TLSCredential is the client-side no-op counterpart: identity proof
// happened during the TLS handshake, so Respond sends an empty response.
type TLSCredential struct{}

func (TLSCredential) Method() string { return "tls" }
func (TLSCredential) Respond(_ *protocol.AuthChallenge) (*protocol.AuthResponse, error) {
	return &protocol.AuthResponse{Method: "tls"}, nil
}

// --- Password (bcrypt) ---

// PasswordAuthenticator verifies a client-supplied plaintext password
// against a bcrypt hash configured on the server.
type PasswordAuthenticator struct {
	hash []byte
	user string
}

func NewPasswordAuthenticator(user, bcryptHash string) *PasswordAuthenticator {
	return &PasswordAuthenticator{user: user, hash: []byte(bcryptHash)}
}

func (a *PasswordAuthenticator) Method() string                    { return "password" }
func (a *PasswordAuthenticator) Challenge() *protocol.AuthChallenge { return nil }

func (a *PasswordAuthenticator) Verify(resp *protocol.AuthResponse, _ *protocol.AuthChallenge) (string, error) {
	if resp == nil || resp.Password == "" {
		return "", fmt.Errorf("%w: empty password", ErrAuth)
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(resp.Password)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return a.user, nil
}

// PasswordCredential supplies a plaintext password from the client side.
// It is sent once over the already-framed (and, when configured, TLS-
// wrapped) transport, matching the teacher's practice of never storing
// plaintext credentials at rest.
type PasswordCredential struct {
	Password string
}

func (c PasswordCredential) Method() string { return "password" }
func (c PasswordCredential) Respond(_ *protocol.AuthChallenge) (*protocol.AuthResponse, error) {
	return &protocol.AuthResponse{Method: "password", Password: c.Password}, nil
}

// --- Ticket (HMAC-SHA256, time-boxed) ---

// TicketAuthenticator verifies HMAC-SHA256-signed, time-boxed tickets
// minted by MintTicket, without round-tripping to external storage —
// grounded in the teacher's IPC envelope HMAC signing (internal/ipc).
type TicketAuthenticator struct {
	key []byte
	ttl time.Duration
}

func NewTicketAuthenticator(key []byte, ttl time.Duration) *TicketAuthenticator {
	return &TicketAuthenticator{key: key, ttl: ttl}
}

func (a *TicketAuthenticator) Method() string                    { return "ticket" }
func (a *TicketAuthenticator) Challenge() *protocol.AuthChallenge { return nil }

func (a *TicketAuthenticator) Verify(resp *protocol.AuthResponse, _ *protocol.AuthChallenge) (string, error) {
	if resp == nil || resp.Ticket == "" {
		return "", fmt.Errorf("%w: empty ticket", ErrAuth)
	}
	identity, err := verifyTicket(a.key, a.ttl, resp.Ticket)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return identity, nil
}

// MintTicket produces a base64 ticket of the form
// identity|issuedUnixNano, HMAC-signed with key. Intended to be generated
// out-of-band (e.g. by an admin API) and handed to a client ahead of
// connecting.
func MintTicket(key []byte, identity string) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("session: empty ticket identity")
	}
	issued := time.Now().UnixNano()
	body := ticketBody(identity, issued)
	sig := signTicket(key, body)

	buf := make([]byte, len(body)+len(sig))
	copy(buf, body)
	copy(buf[len(body):], sig)
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func ticketBody(identity string, issuedUnixNano int64) []byte {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(issuedUnixNano))
	body := make([]byte, 0, len(identity)+1+8)
	body = append(body, []byte(identity)...)
	body = append(body, '|')
	body = append(body, ts[:]...)
	return body
}

func signTicket(key, body []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return mac.Sum(nil)
}

func verifyTicket(key []byte, ttl time.Duration, ticket string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ticket)
	if err != nil {
		return "", fmt.Errorf("malformed ticket encoding: %w", err)
	}
	if len(raw) < sha256.Size+9 {
		return "", fmt.Errorf("malformed ticket length")
	}
	body := raw[:len(raw)-sha256.Size]
	sig := raw[len(raw)-sha256.Size:]

	want := signTicket(key, body)
	if subtle.ConstantTimeCompare(sig, want) != 1 {
		return "", fmt.Errorf("ticket signature mismatch")
	}

	sepIdx := len(body) - 8 - 1
	if sepIdx < 0 || body[sepIdx] != '|' {
		return "", fmt.Errorf("malformed ticket body")
	}
	identity := string(body[:sepIdx])
	issuedUnixNano := int64(binary.BigEndian.Uint64(body[sepIdx+1:]))
	issued := time.Unix(0, issuedUnixNano)

	if ttl > 0 && time.Since(issued) > ttl {
		return "", fmt.Errorf("ticket expired")
	}
	return identity, nil
}

// TicketCredential supplies a pre-minted ticket from the client side.
type TicketCredential struct {
	Ticket string
}

func (c TicketCredential) Method() string { return "ticket" }
func (c TicketCredential) Respond(_ *protocol.AuthChallenge) (*protocol.AuthResponse, error) {
	return &protocol.AuthResponse{Method: "ticket", Ticket: c.Ticket}, nil
}

// randomNonce is used by authenticators that want a Challenge nonce, kept
// here so every method can opt into an echo-nonce pattern without
// duplicating the rand.Read boilerplate.
func randomNonce(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("session: generate nonce: %w", err)
	}
	return b, nil
}
