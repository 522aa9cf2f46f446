package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/meridian-rdp/core/internal/clipboard"
	"github.com/meridian-rdp/core/internal/colorspace"
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

type fakeSource struct {
	mu    sync.Mutex
	shade byte
}

func (f *fakeSource) Capture() (*colorspace.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shade++
	const w, h = 16, 16
	pix := make([]byte, w*h*4)
	for i := range pix {
		pix[i] = f.shade
	}
	return &colorspace.Image{Format: protocol.PixelFormatBGRX8888, Width: w, Height: h, Stride: w * 4, Pix: pix}, nil
}

type fakeInjector struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeInjector) InjectKey(raw uint32, down bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "key")
	return nil
}
func (f *fakeInjector) InjectPointerMotion(x, y int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "motion")
	return nil
}
func (f *fakeInjector) InjectPointerButton(button uint32, down bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "button")
	return nil
}

func testConfig(source video.FrameSource, injector *fakeInjector, provider clipboard.Provider) Config {
	return Config{
		Codecs:            []session.CodecCapability{{Name: "raw", PixelFormats: []protocol.PixelFormat{protocol.PixelFormatYUV420P}}},
		VideoSource:       source,
		EncoderCfg:        video.DefaultEncoderConfig(),
		InitialFPS:        200,
		MinFPS:            10,
		MaxFPS:            240,
		Injector:          injector,
		ClipboardProvider: provider,
		ClipboardPolicy:   protocol.ClipboardBoth,
	}
}

func TestAcceptNegotiatesAndStreamsFrames(t *testing.T) {
	serverConn, clientConn := pipeConns(t)
	defer serverConn.Close()
	defer clientConn.Close()

	cfg := testConfig(&fakeSource{}, &fakeInjector{}, clipboard.NewMemoryProvider())

	type result struct {
		conn *Conn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		c, err := Accept(serverConn, cfg, "127.0.0.1:1234")
		accepted <- result{c, err}
	}()

	clientSess, err := session.ClientHandshake(clientConn, session.ClientConfig{SupportedCodecs: []string{"raw"}})
	if err != nil {
		t.Fatalf("ClientHandshake: %v", err)
	}

	r := <-accepted
	if r.err != nil {
		t.Fatalf("Accept: %v", r.err)
	}
	if clientSess.GetState() != session.StateStreaming {
		t.Fatalf("expected client STREAMING, got %v", clientSess.GetState())
	}

	ctx, cancel := context.WithCancel(context.Background())
	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- r.conn.Serve(ctx) }()

	gotFrame := make(chan struct{}, 1)
	go func() {
		for {
			msg, err := clientConn.Recv()
			if err != nil {
				return
			}
			if msg.Kind == protocol.KindVideoFrame {
				select {
				case gotFrame <- struct{}{}:
				default:
				}
			}
		}
	}()

	select {
	case <-gotFrame:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a video frame")
	}

	cancel()
	<-serveErrCh
}

func TestAcceptAppliesInboundInputAndReleasesOnDisconnect(t *testing.T) {
	serverConn, clientConn := pipeConns(t)
	defer serverConn.Close()

	injector := &fakeInjector{}
	cfg := testConfig(&fakeSource{}, injector, nil)

	accepted := make(chan *Conn, 1)
	go func() {
		c, err := Accept(serverConn, cfg, "127.0.0.1:1234")
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		accepted <- c
	}()

	if _, err := session.ClientHandshake(clientConn, session.ClientConfig{SupportedCodecs: []string{"raw"}}); err != nil {
		t.Fatalf("ClientHandshake: %v", err)
	}
	conn := <-accepted

	ctx, cancel := context.WithCancel(context.Background())
	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- conn.Serve(ctx) }()

	if err := clientConn.Send(&protocol.Message{Kind: protocol.KindKeyEvent, KeyEvent: &protocol.KeyEvent{RawKeycode: 0x04, Down: true}}); err != nil {
		t.Fatalf("send key event: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		if conn.pressed.Len() > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for key event to be applied")
		case <-time.After(10 * time.Millisecond):
		}
	}

	clientConn.Close()
	cancel()
	<-serveErrCh

	if conn.pressed.Len() != 0 {
		t.Fatalf("expected all pressed keys released on disconnect, got %d", conn.pressed.Len())
	}
	injector.mu.Lock()
	calls := append([]string{}, injector.calls...)
	injector.mu.Unlock()
	if len(calls) < 2 {
		t.Fatalf("expected at least a key-down and a release call, got %v", calls)
	}
}
