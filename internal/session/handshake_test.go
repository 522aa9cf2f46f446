package session

import (
	"encoding/base64"
	"errors"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-rdp/core/internal/protocol"
	"github.com/meridian-rdp/core/internal/transport"
)

func pipe(t *testing.T) (*transport.Conn, *transport.Conn) {
	t.Helper()
	a, b := net.Pipe()
	return transport.New(a), transport.New(b)
}

func TestHandshakeNoAuthSucceeds(t *testing.T) {
	serverConn, clientConn := pipe(t)
	defer serverConn.Close()
	defer clientConn.Close()

	serverCfg := ServerConfig{
		Codecs:    []CodecCapability{{Name: "h264", PixelFormats: []protocol.PixelFormat{protocol.PixelFormatYUV420P}}},
		VideoW:    1920,
		VideoH:    1080,
		AudioRate: 8000,
	}
	clientCfg := ClientConfig{SupportedCodecs: []string{"h264"}}

	type result struct {
		sess *Session
		err  error
	}
	serverResult := make(chan result, 1)
	go func() {
		s, err := ServerHandshake(serverConn, serverCfg)
		serverResult <- result{s, err}
	}()

	clientSess, err := ClientHandshake(clientConn, clientCfg)
	if err != nil {
		t.Fatalf("ClientHandshake: %v", err)
	}
	r := <-serverResult
	if r.err != nil {
		t.Fatalf("ServerHandshake: %v", r.err)
	}

	if r.sess.GetState() != StateStreaming || clientSess.GetState() != StateStreaming {
		t.Fatalf("expected both sides STREAMING, got server=%v client=%v", r.sess.GetState(), clientSess.GetState())
	}
	if r.sess.Codec != "h264" || clientSess.Codec != "h264" {
		t.Fatalf("expected codec h264 on both sides, got server=%q client=%q", r.sess.Codec, clientSess.Codec)
	}
	if clientSess.VideoW != 1920 || clientSess.VideoH != 1080 {
		t.Fatalf("client did not receive negotiated resolution: %+v", clientSess)
	}
}

func TestHandshakePropagatesNegotiatedClipboardPolicy(t *testing.T) {
	serverConn, clientConn := pipe(t)
	defer serverConn.Close()
	defer clientConn.Close()

	serverCfg := ServerConfig{
		Codecs:          []CodecCapability{{Name: "h264", PixelFormats: []protocol.PixelFormat{protocol.PixelFormatYUV420P}}},
		ClipboardPolicy: protocol.ClipboardBoth,
	}
	clientCfg := ClientConfig{SupportedCodecs: []string{"h264"}}

	go ServerHandshake(serverConn, serverCfg)

	clientSess, err := ClientHandshake(clientConn, clientCfg)
	if err != nil {
		t.Fatalf("ClientHandshake: %v", err)
	}
	if clientSess.ClipboardPolicy != protocol.ClipboardBoth {
		t.Fatalf("client ClipboardPolicy = %v, want %v", clientSess.ClipboardPolicy, protocol.ClipboardBoth)
	}
}

func TestHandshakeNoCommonCodecFails(t *testing.T) {
	serverConn, clientConn := pipe(t)
	defer serverConn.Close()
	defer clientConn.Close()

	serverCfg := ServerConfig{
		Codecs: []CodecCapability{{Name: "vp9", PixelFormats: []protocol.PixelFormat{protocol.PixelFormatYUV420P}}},
	}
	clientCfg := ClientConfig{SupportedCodecs: []string{"h264"}}

	errCh := make(chan error, 1)
	go func() {
		_, err := ServerHandshake(serverConn, serverCfg)
		errCh <- err
	}()

	_, clientErr := ClientHandshake(clientConn, clientCfg)
	if clientErr == nil {
		t.Fatal("expected client handshake to fail after server Bye")
	}
	if serverErr := <-errCh; serverErr == nil {
		t.Fatal("expected server handshake to report negotiate failure")
	}
}

func TestHandshakePasswordAuth(t *testing.T) {
	serverConn, clientConn := pipe(t)
	defer serverConn.Close()
	defer clientConn.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	serverCfg := ServerConfig{
		Codecs:         []CodecCapability{{Name: "h264", PixelFormats: []protocol.PixelFormat{protocol.PixelFormatYUV420P}}},
		Authenticators: []ServerAuthenticator{NewPasswordAuthenticator("alice", string(hash))},
	}
	clientCfg := ClientConfig{
		SupportedCodecs: []string{"h264"},
		Credential:      PasswordCredential{Password: "hunter2"},
	}

	serverResult := make(chan error, 1)
	go func() {
		s, err := ServerHandshake(serverConn, serverCfg)
		if err == nil && s.AuthenticatedUser != "alice" {
			err = errDummy("unexpected identity")
		}
		serverResult <- err
	}()

	if _, err := ClientHandshake(clientConn, clientCfg); err != nil {
		t.Fatalf("ClientHandshake: %v", err)
	}
	if err := <-serverResult; err != nil {
		t.Fatalf("ServerHandshake: %v", err)
	}
}

func TestHandshakeBadPasswordFails(t *testing.T) {
	serverConn, clientConn := pipe(t)
	defer serverConn.Close()
	defer clientConn.Close()

	hash, _ := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	serverCfg := ServerConfig{
		Codecs:         []CodecCapability{{Name: "h264", PixelFormats: []protocol.PixelFormat{protocol.PixelFormatYUV420P}}},
		Authenticators: []ServerAuthenticator{NewPasswordAuthenticator("alice", string(hash))},
	}
	clientCfg := ClientConfig{
		SupportedCodecs: []string{"h264"},
		Credential:      PasswordCredential{Password: "wrong"},
	}

	serverErrCh := make(chan error, 1)
	go func() {
		_, err := ServerHandshake(serverConn, serverCfg)
		serverErrCh <- err
	}()

	_, clientErr := ClientHandshake(clientConn, clientCfg)
	if clientErr == nil {
		t.Fatal("expected client to see auth failure")
	}
	if serverErr := <-serverErrCh; serverErr == nil {
		t.Fatal("expected server to report auth failure")
	}
}

func TestTicketRoundTrip(t *testing.T) {
	key := []byte("a-fake-hmac-key-for-tests-only!")
	ticket, err := MintTicket(key, "bob")
	if err != nil {
		t.Fatalf("MintTicket: %v", err)
	}
	identity, err := verifyTicket(key, time.Hour, ticket)
	if err != nil {
		t.Fatalf("verifyTicket: %v", err)
	}
	if identity != "bob" {
		t.Fatalf("got identity %q, want bob", identity)
	}
}

func TestTicketExpires(t *testing.T) {
	key := []byte("a-fake-hmac-key-for-tests-only!")
	body := ticketBody("carol", time.Now().Add(-time.Hour).UnixNano())
	sig := signTicket(key, body)
	raw := append(append([]byte{}, body...), sig...)
	ticket := base64.RawURLEncoding.EncodeToString(raw)

	if _, err := verifyTicket(key, time.Minute, ticket); err == nil {
		t.Fatal("expected expired ticket to fail verification")
	}
}

func TestTicketTamperedSignatureRejected(t *testing.T) {
	key := []byte("a-fake-hmac-key-for-tests-only!")
	ticket, err := MintTicket(key, "dave")
	if err != nil {
		t.Fatalf("MintTicket: %v", err)
	}
	tampered := []byte(ticket)
	tampered[0] ^= 0xFF
	if _, err := verifyTicket(key, time.Hour, string(tampered)); err == nil {
		t.Fatal("expected tampered ticket to fail verification")
	}
}

func TestHandshakeRejectsWhenRateLimited(t *testing.T) {
	serverConn, clientConn := pipe(t)
	defer serverConn.Close()
	defer clientConn.Close()

	limiter := NewAuthRateLimiter(1, time.Minute)
	limiter.Allow("10.0.0.5:9999") // exhaust the single allowed attempt up front

	serverCfg := ServerConfig{
		Codecs:      []CodecCapability{{Name: "h264", PixelFormats: []protocol.PixelFormat{protocol.PixelFormatYUV420P}}},
		RateLimiter: limiter,
		RemoteAddr:  "10.0.0.5:9999",
	}
	clientCfg := ClientConfig{SupportedCodecs: []string{"h264"}}

	serverErrCh := make(chan error, 1)
	go func() {
		_, err := ServerHandshake(serverConn, serverCfg)
		serverErrCh <- err
	}()

	_, clientErr := ClientHandshake(clientConn, clientCfg)
	if clientErr == nil {
		t.Fatal("expected client handshake to fail after server Bye")
	}
	serverErr := <-serverErrCh
	if serverErr == nil {
		t.Fatal("expected server handshake to report rate limit failure")
	}
	if !errors.Is(serverErr, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", serverErr)
	}
}

type errDummy string

func (e errDummy) Error() string { return string(e) }
