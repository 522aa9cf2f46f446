package session

import (
	"fmt"

	"github.com/meridian-rdp/core/internal/protocol"
	"github.com/meridian-rdp/core/internal/transport"
)

// CodecCapability describes one server-side encoder the negotiator may
// offer, along with the pixel formats it can consume.
type CodecCapability struct {
	Name         string
	PixelFormats []protocol.PixelFormat
}

// ServerConfig parameterizes ServerHandshake.
type ServerConfig struct {
	Codecs          []CodecCapability
	Authenticators  []ServerAuthenticator
	VideoW, VideoH  int32
	AudioRate       int
	ClipboardPolicy protocol.ClipboardPolicy
	AllowPrint      bool

	// RateLimiter, when set, bounds how many auth attempts RemoteAddr may
	// make per window; exceeding it fails the handshake immediately.
	RateLimiter *AuthRateLimiter
	RemoteAddr  string
}

// ServerHandshake drives INIT → HELLO_SENT → AUTH → NEGOTIATE on the
// server side, returning a populated, STREAMING-state Session on success.
// On any failure it attempts to send Bye before returning an error; the
// caller is still responsible for closing conn.
func ServerHandshake(conn *transport.Conn, cfg ServerConfig) (*Session, error) {
	sess := New(RoleClient)
	sess.SetState(StateHelloSent)

	msg, err := conn.Recv()
	if err != nil {
		return nil, fmt.Errorf("session: recv hello: %w", err)
	}
	if msg.Kind != protocol.KindHello || msg.Hello == nil {
		failf(conn, "protocol_error")
		return nil, fmt.Errorf("%w: expected Hello, got %v", ErrNegotiate, msg.Kind)
	}
	hello := msg.Hello

	if hello.ProtoVersion != ProtoVersion {
		failf(conn, "version")
		return nil, fmt.Errorf("%w: client=%d server=%d", ErrVersion, hello.ProtoVersion, ProtoVersion)
	}

	methodNames := make([]string, 0, len(cfg.Authenticators))
	for _, a := range cfg.Authenticators {
		methodNames = append(methodNames, a.Method())
	}
	codecNames := make([]string, 0, len(cfg.Codecs))
	for _, c := range cfg.Codecs {
		codecNames = append(codecNames, c.Name)
	}
	chosen := intersectCodecs(codecNames, hello.SupportedCodecs)
	if len(chosen) == 0 {
		failf(conn, "negotiate")
		return nil, fmt.Errorf("%w: no common codec", ErrNegotiate)
	}

	if err := conn.Send(&protocol.Message{
		Kind: protocol.KindServerHello,
		ServerHello: &protocol.ServerHello{
			ProtoVersion:          ProtoVersion,
			ChosenCodecCandidates: chosen,
			AuthMethods:           methodNames,
		},
	}); err != nil {
		return nil, fmt.Errorf("session: send server hello: %w", err)
	}

	sess.SetState(StateAuth)
	if cfg.RateLimiter != nil && !cfg.RateLimiter.Allow(cfg.RemoteAddr) {
		failf(conn, "rate_limited")
		return nil, fmt.Errorf("%w: too many auth attempts from %s", ErrAuth, cfg.RemoteAddr)
	}
	identity, err := runServerAuth(conn, cfg.Authenticators)
	if err != nil {
		failf(conn, "auth")
		return nil, err
	}
	sess.AuthenticatedUser = identity

	sess.SetState(StateNegotiate)
	codec, err := pickCodec(cfg.Codecs, chosen)
	if err != nil {
		failf(conn, "negotiate")
		return nil, err
	}
	sess.Codec = codec.Name
	sess.VideoW, sess.VideoH = cfg.VideoW, cfg.VideoH
	sess.AudioRate = cfg.AudioRate
	sess.ClipboardPolicy = cfg.ClipboardPolicy
	sess.AllowPrint = cfg.AllowPrint

	if err := conn.Send(&protocol.Message{
		Kind: protocol.KindResolutionChange,
		ResolutionChange: &protocol.ResolutionChange{
			W: cfg.VideoW, H: cfg.VideoH,
			ClipboardPolicy: sess.ClipboardPolicy,
		},
	}); err != nil {
		return nil, fmt.Errorf("session: send resolution change: %w", err)
	}

	sess.SetState(StateStreaming)
	return sess, nil
}

// ClientConfig parameterizes ClientHandshake.
type ClientConfig struct {
	SupportedCodecs          []string
	ScreenHintW, ScreenHintH int32
	AudioWanted              bool
	ClipboardPolicyRequest   protocol.ClipboardPolicy
	Credential               ClientCredential
}

// ClientHandshake drives the client side of the same state machine,
// returning a populated, STREAMING-state Session on success.
func ClientHandshake(conn *transport.Conn, cfg ClientConfig) (*Session, error) {
	sess := New(RoleServer)
	sess.SetState(StateHelloSent)

	if err := conn.Send(&protocol.Message{
		Kind: protocol.KindHello,
		Hello: &protocol.Hello{
			ProtoVersion:           ProtoVersion,
			SupportedCodecs:        cfg.SupportedCodecs,
			ScreenHintW:            cfg.ScreenHintW,
			ScreenHintH:            cfg.ScreenHintH,
			AudioWanted:            cfg.AudioWanted,
			ClipboardPolicyRequest: cfg.ClipboardPolicyRequest,
		},
	}); err != nil {
		return nil, fmt.Errorf("session: send hello: %w", err)
	}

	msg, err := conn.Recv()
	if err != nil {
		return nil, fmt.Errorf("session: recv server hello: %w", err)
	}
	if msg.Kind == protocol.KindBye {
		return nil, fmt.Errorf("session: server closed: %s", msg.Bye.Reason)
	}
	if msg.Kind != protocol.KindServerHello || msg.ServerHello == nil {
		return nil, fmt.Errorf("%w: expected ServerHello, got %v", ErrNegotiate, msg.Kind)
	}
	sh := msg.ServerHello
	if sh.ProtoVersion != ProtoVersion {
		return nil, fmt.Errorf("%w: client=%d server=%d", ErrVersion, ProtoVersion, sh.ProtoVersion)
	}

	sess.SetState(StateAuth)
	if len(sh.AuthMethods) > 0 {
		if err := runClientAuth(conn, cfg.Credential); err != nil {
			return nil, err
		}
	}

	sess.SetState(StateNegotiate)
	msg, err = conn.Recv()
	if err != nil {
		return nil, fmt.Errorf("session: recv resolution change: %w", err)
	}
	if msg.Kind == protocol.KindBye {
		return nil, fmt.Errorf("session: server closed: %s", msg.Bye.Reason)
	}
	if msg.Kind != protocol.KindResolutionChange || msg.ResolutionChange == nil {
		return nil, fmt.Errorf("%w: expected ResolutionChange, got %v", ErrNegotiate, msg.Kind)
	}
	sess.VideoW, sess.VideoH = msg.ResolutionChange.W, msg.ResolutionChange.H
	sess.ClipboardPolicy = msg.ResolutionChange.ClipboardPolicy
	if len(sh.ChosenCodecCandidates) > 0 {
		sess.Codec = sh.ChosenCodecCandidates[0]
	}

	sess.SetState(StateStreaming)
	return sess, nil
}

func runServerAuth(conn *transport.Conn, authenticators []ServerAuthenticator) (string, error) {
	if len(authenticators) == 0 {
		return "", nil
	}
	// The first configured method drives the round-trip; a deployment
	// wanting method selection would extend AuthResponse.Method handling
	// here, but spec.md leaves method selection out of scope.
	auth := authenticators[0]

	// The client always waits for an AuthChallenge before sending its
	// AuthResponse (runClientAuth below), so the server must always send
	// one even when the method itself has nothing to challenge — a nil
	// Challenge() just means an empty one, naming the method so the wire
	// still carries something to Recv on the other side. Otherwise both
	// peers block in Recv and the handshake never completes.
	challenge := auth.Challenge()
	if challenge == nil {
		challenge = &protocol.AuthChallenge{Method: auth.Method()}
	}
	if err := conn.Send(&protocol.Message{Kind: protocol.KindAuthChallenge, AuthChallenge: challenge}); err != nil {
		return "", fmt.Errorf("session: send auth challenge: %w", err)
	}

	msg, err := conn.Recv()
	if err != nil {
		return "", fmt.Errorf("session: recv auth response: %w", err)
	}
	if msg.Kind != protocol.KindAuthResponse || msg.AuthResponse == nil {
		return "", fmt.Errorf("%w: expected AuthResponse, got %v", ErrAuth, msg.Kind)
	}

	identity, err := auth.Verify(msg.AuthResponse, challenge)
	if err != nil {
		return "", err
	}
	return identity, nil
}

func runClientAuth(conn *transport.Conn, cred ClientCredential) error {
	if cred == nil {
		cred = TLSCredential{}
	}

	var challenge *protocol.AuthChallenge
	msg, err := conn.Recv()
	if err != nil {
		return fmt.Errorf("session: recv: %w", err)
	}
	if msg.Kind == protocol.KindBye {
		return fmt.Errorf("session: server closed: %s", msg.Bye.Reason)
	}
	if msg.Kind == protocol.KindAuthChallenge {
		challenge = msg.AuthChallenge
	}

	resp, err := cred.Respond(challenge)
	if err != nil {
		return fmt.Errorf("session: build auth response: %w", err)
	}
	if err := conn.Send(&protocol.Message{Kind: protocol.KindAuthResponse, AuthResponse: resp}); err != nil {
		return fmt.Errorf("session: send auth response: %w", err)
	}
	return nil
}

func pickCodec(codecs []CodecCapability, chosenNames []string) (CodecCapability, error) {
	for _, want := range chosenNames {
		for _, c := range codecs {
			if c.Name == want && supportsCommonPixelFormat(c.PixelFormats) {
				return c, nil
			}
		}
	}
	return CodecCapability{}, fmt.Errorf("%w: no candidate codec supports a common pixel format", ErrNegotiate)
}

func failf(conn *transport.Conn, reason string) {
	_ = conn.Send(&protocol.Message{Kind: protocol.KindBye, Bye: &protocol.Bye{Reason: reason}})
}
