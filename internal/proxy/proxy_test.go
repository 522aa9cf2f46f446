package proxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/meridian-rdp/core/internal/protocol"
	"github.com/meridian-rdp/core/internal/session"
	"github.com/meridian-rdp/core/internal/transport"
	"github.com/meridian-rdp/core/internal/video"
)

func pipeConns(t *testing.T) (*transport.Conn, *transport.Conn) {
	t.Helper()
	a, b := net.Pipe()
	return transport.New(a), transport.New(b)
}

// fakeUpstream performs the server side of the upstream handshake over
// upConn, then lets the test drive further sends/receives directly.
func fakeUpstream(t *testing.T, upConn *transport.Conn, codec string, errCh chan<- error) {
	t.Helper()
	_, err := session.ServerHandshake(upConn, session.ServerConfig{
		Codecs: []session.CodecCapability{{Name: codec, PixelFormats: []protocol.PixelFormat{protocol.PixelFormatYUV420P}}},
		VideoW: 1920, VideoH: 1080,
	})
	errCh <- err
}

func TestProxyForwardsVideoFrameVerbatim(t *testing.T) {
	downServerSide, downClientSide := pipeConns(t)
	defer downServerSide.Close()
	defer downClientSide.Close()
	upClientSide, upServerSide := pipeConns(t)
	defer upClientSide.Close()
	defer upServerSide.Close()

	upErrCh := make(chan error, 1)
	go fakeUpstream(t, upServerSide, "raw", upErrCh)

	cfg := Config{
		Codecs:         []session.CodecCapability{{Name: "raw", PixelFormats: []protocol.PixelFormat{protocol.PixelFormatYUV420P}}},
		Dial:           func() (*transport.Conn, error) { return upClientSide, nil },
		UpstreamCodecs: []string{"raw"},
	}

	accepted := make(chan *Session, 1)
	acceptErrCh := make(chan error, 1)
	go func() {
		s, err := Accept(downServerSide, cfg, "10.0.0.1:1")
		if err != nil {
			acceptErrCh <- err
			return
		}
		accepted <- s
	}()

	if _, err := session.ClientHandshake(downClientSide, session.ClientConfig{SupportedCodecs: []string{"raw"}}); err != nil {
		t.Fatalf("ClientHandshake: %v", err)
	}
	if err := <-upErrCh; err != nil {
		t.Fatalf("fakeUpstream ServerHandshake: %v", err)
	}

	var sess *Session
	select {
	case sess = <-accepted:
	case err := <-acceptErrCh:
		t.Fatalf("Accept: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for proxy Accept")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErrCh := make(chan error, 1)
	go func() { runErrCh <- sess.Run(ctx) }()

	want := []byte{1, 2, 3, 4, 5}
	if err := upServerSide.Send(&protocol.Message{
		Kind:       protocol.KindVideoFrame,
		VideoFrame: &protocol.VideoFrame{EncodedBytes: want, Width: 1920, Height: 1080, Keyframe: true},
	}); err != nil {
		t.Fatalf("send video frame upstream: %v", err)
	}

	msg, err := downClientSide.Recv()
	if err != nil {
		t.Fatalf("recv forwarded frame: %v", err)
	}
	if msg.Kind != protocol.KindVideoFrame || msg.VideoFrame == nil {
		t.Fatalf("expected VideoFrame, got %v", msg.Kind)
	}
	if string(msg.VideoFrame.EncodedBytes) != string(want) {
		t.Fatalf("frame bytes rewritten without transcoding: got %v want %v", msg.VideoFrame.EncodedBytes, want)
	}

	cancel()
	<-runErrCh
}

func TestProxyForwardsInputUpstream(t *testing.T) {
	downServerSide, downClientSide := pipeConns(t)
	defer downServerSide.Close()
	defer downClientSide.Close()
	upClientSide, upServerSide := pipeConns(t)
	defer upClientSide.Close()
	defer upServerSide.Close()

	upErrCh := make(chan error, 1)
	go fakeUpstream(t, upServerSide, "raw", upErrCh)

	cfg := Config{
		Codecs:         []session.CodecCapability{{Name: "raw", PixelFormats: []protocol.PixelFormat{protocol.PixelFormatYUV420P}}},
		Dial:           func() (*transport.Conn, error) { return upClientSide, nil },
		UpstreamCodecs: []string{"raw"},
	}

	accepted := make(chan *Session, 1)
	go func() {
		s, err := Accept(downServerSide, cfg, "10.0.0.1:1")
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		accepted <- s
	}()

	if _, err := session.ClientHandshake(downClientSide, session.ClientConfig{SupportedCodecs: []string{"raw"}}); err != nil {
		t.Fatalf("ClientHandshake: %v", err)
	}
	if err := <-upErrCh; err != nil {
		t.Fatalf("fakeUpstream ServerHandshake: %v", err)
	}

	sess := <-accepted
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErrCh := make(chan error, 1)
	go func() { runErrCh <- sess.Run(ctx) }()

	if err := downClientSide.Send(&protocol.Message{
		Kind:     protocol.KindKeyEvent,
		KeyEvent: &protocol.KeyEvent{RawKeycode: 0x09, Down: true},
	}); err != nil {
		t.Fatalf("send key event downstream: %v", err)
	}

	msg, err := upServerSide.Recv()
	if err != nil {
		t.Fatalf("recv forwarded key event upstream: %v", err)
	}
	if msg.Kind != protocol.KindKeyEvent || msg.KeyEvent == nil || msg.KeyEvent.RawKeycode != 0x09 {
		t.Fatalf("key event not forwarded intact: %+v", msg)
	}

	cancel()
	<-runErrCh
}

func TestProxyTranscodesWhenCodecsDiffer(t *testing.T) {
	downServerSide, downClientSide := pipeConns(t)
	defer downServerSide.Close()
	defer downClientSide.Close()
	upClientSide, upServerSide := pipeConns(t)
	defer upClientSide.Close()
	defer upServerSide.Close()

	upErrCh := make(chan error, 1)
	go fakeUpstream(t, upServerSide, "h264", upErrCh)

	cfg := Config{
		Codecs:              []session.CodecCapability{{Name: "vp9", PixelFormats: []protocol.PixelFormat{protocol.PixelFormatYUV420P}}},
		Dial:                func() (*transport.Conn, error) { return upClientSide, nil },
		UpstreamCodecs:      []string{"h264"},
		Transcode:           true,
		TranscodeEncoderCfg: video.DefaultEncoderConfig(),
	}

	accepted := make(chan *Session, 1)
	go func() {
		s, err := Accept(downServerSide, cfg, "10.0.0.1:1")
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		accepted <- s
	}()

	if _, err := session.ClientHandshake(downClientSide, session.ClientConfig{SupportedCodecs: []string{"vp9"}}); err != nil {
		t.Fatalf("ClientHandshake: %v", err)
	}
	if err := <-upErrCh; err != nil {
		t.Fatalf("fakeUpstream ServerHandshake: %v", err)
	}

	sess := <-accepted
	if sess.transcoder == nil {
		t.Fatal("expected a transcoder to be constructed for mismatched codecs")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErrCh := make(chan error, 1)
	go func() { runErrCh <- sess.Run(ctx) }()

	raw := []byte{9, 9, 9, 9}
	if err := upServerSide.Send(&protocol.Message{
		Kind:       protocol.KindVideoFrame,
		VideoFrame: &protocol.VideoFrame{EncodedBytes: raw, Width: 1920, Height: 1080},
	}); err != nil {
		t.Fatalf("send video frame upstream: %v", err)
	}

	msg, err := downClientSide.Recv()
	if err != nil {
		t.Fatalf("recv transcoded frame: %v", err)
	}
	if msg.Kind != protocol.KindVideoFrame || msg.VideoFrame == nil {
		t.Fatalf("expected VideoFrame, got %v", msg.Kind)
	}
	if !msg.VideoFrame.Keyframe {
		t.Fatal("expected freshly (re)created transcoder to emit a keyframe first")
	}
	if string(msg.VideoFrame.EncodedBytes) != string(raw) {
		t.Fatalf("reference backend is byte transparent, expected payload preserved: got %v want %v", msg.VideoFrame.EncodedBytes, raw)
	}

	cancel()
	<-runErrCh
}
