package webrtcconn

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/meridian-rdp/core/internal/transport"
)

// iceGatherTimeout bounds how long Dial/Accept wait for ICE gathering and
// data channel establishment, mirroring the teacher's gathering timeout
// for its cloud-relayed sessions.
const iceGatherTimeout = 20 * time.Second

// sdpMessage is the signaling payload exchanged over a plain TCP
// connection before the data channel exists. There is no cloud relay in
// this module to carry SDP out of band, so the two peers rendezvous
// directly: whoever dials opens the TCP connection and sends the offer,
// whoever accepts sends back the answer.
type sdpMessage struct {
	SDP string `json:"sdp"`
}

// Dial opens a TCP connection to addr, negotiates a data channel over it
// by exchanging SDP offer/answer as JSON, and returns the channel wrapped
// as a framed transport.Conn. The signaling connection is closed once
// negotiation completes; media flows entirely over the data channel.
func Dial(addr string) (*transport.Conn, error) {
	sigConn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("webrtcconn: dial %s: %w", addr, err)
	}
	defer sigConn.Close()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: DefaultICEServers})
	if err != nil {
		return nil, fmt.Errorf("webrtcconn: new peer connection: %w", err)
	}
	dc, err := pc.CreateDataChannel("meridian", nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("webrtcconn: create data channel: %w", err)
	}

	opened := make(chan struct{})
	registerOnOpen(dc, opened)

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("webrtcconn: create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("webrtcconn: set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		pc.Close()
		return nil, fmt.Errorf("webrtcconn: ice gathering timed out")
	}

	if err := json.NewEncoder(sigConn).Encode(sdpMessage{SDP: pc.LocalDescription().SDP}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("webrtcconn: send offer: %w", err)
	}
	var answer sdpMessage
	if err := json.NewDecoder(sigConn).Decode(&answer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("webrtcconn: recv answer: %w", err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("webrtcconn: set remote description: %w", err)
	}

	if err := waitOpen(opened, pc); err != nil {
		return nil, err
	}
	return Wrap(pc, dc), nil
}

// Listener accepts TCP connections, performs the answerer side of SDP
// signaling on each, and hands back the resulting data channel as a
// framed transport.Conn — mirroring vsock's already-framed Accept shape
// rather than net.Listener's raw net.Conn one.
type Listener struct {
	ln net.Listener
}

// Listen binds addr for WebRTC signaling connections.
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("webrtcconn: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

func (l *Listener) Accept() (*transport.Conn, error) {
	sigConn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return accept(sigConn)
}

func (l *Listener) Close() error { return l.ln.Close() }

func accept(sigConn net.Conn) (*transport.Conn, error) {
	defer sigConn.Close()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: DefaultICEServers})
	if err != nil {
		return nil, fmt.Errorf("webrtcconn: new peer connection: %w", err)
	}

	dcCh := make(chan *webrtc.DataChannel, 1)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) { dcCh <- dc })

	var offer sdpMessage
	if err := json.NewDecoder(sigConn).Decode(&offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("webrtcconn: recv offer: %w", err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("webrtcconn: set remote description: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("webrtcconn: create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("webrtcconn: set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		pc.Close()
		return nil, fmt.Errorf("webrtcconn: ice gathering timed out")
	}

	if err := json.NewEncoder(sigConn).Encode(sdpMessage{SDP: pc.LocalDescription().SDP}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("webrtcconn: send answer: %w", err)
	}

	select {
	case dc := <-dcCh:
		opened := make(chan struct{})
		registerOnOpen(dc, opened)
		if err := waitOpen(opened, pc); err != nil {
			return nil, err
		}
		return Wrap(pc, dc), nil
	case <-time.After(iceGatherTimeout):
		pc.Close()
		return nil, fmt.Errorf("webrtcconn: no data channel offered")
	}
}

func registerOnOpen(dc *webrtc.DataChannel, opened chan struct{}) {
	dc.OnOpen(func() {
		select {
		case <-opened:
		default:
			close(opened)
		}
	})
	if dc.ReadyState() == webrtc.DataChannelStateOpen {
		select {
		case <-opened:
		default:
			close(opened)
		}
	}
}

func waitOpen(opened chan struct{}, pc *webrtc.PeerConnection) error {
	select {
	case <-opened:
		return nil
	case <-time.After(iceGatherTimeout):
		pc.Close()
		return fmt.Errorf("webrtcconn: data channel did not open in time")
	}
}
