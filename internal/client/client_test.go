package client

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meridian-rdp/core/internal/clipboard"
	"github.com/meridian-rdp/core/internal/colorspace"
	"github.com/meridian-rdp/core/internal/input"
	"github.com/meridian-rdp/core/internal/protocol"
	"github.com/meridian-rdp/core/internal/server"
	"github.com/meridian-rdp/core/internal/session"
	"github.com/meridian-rdp/core/internal/transport"
	"github.com/meridian-rdp/core/internal/video"
)

type fakeSource struct{ shade byte }

func (f *fakeSource) Capture() (*colorspace.Image, error) {
	f.shade++
	const w, h = 16, 16
	pix := make([]byte, w*h*4)
	for i := range pix {
		pix[i] = f.shade
	}
	return &colorspace.Image{Format: protocol.PixelFormatBGRX8888, Width: w, Height: h, Stride: w * 4, Pix: pix}, nil
}

func TestClientReceivesVideoFramesFromServer(t *testing.T) {
	a, b := net.Pipe()
	serverConn := transport.New(a)
	clientConn := transport.New(b)
	defer serverConn.Close()
	defer clientConn.Close()

	scfg := server.Config{
		Codecs:      []session.CodecCapability{{Name: "raw", PixelFormats: []protocol.PixelFormat{protocol.PixelFormatYUV420P}}},
		VideoSource: &fakeSource{},
		EncoderCfg:  video.DefaultEncoderConfig(),
		InitialFPS:  200,
		MinFPS:      10,
		MaxFPS:      240,
	}

	accepted := make(chan *server.Conn, 1)
	go func() {
		c, err := server.Accept(serverConn, scfg, "127.0.0.1:1")
		if err != nil {
			t.Errorf("server.Accept: %v", err)
			return
		}
		accepted <- c
	}()

	var frameCount int32
	cl, err := Connect(clientConn, Config{
		SupportedCodecs: []string{"raw"},
		OnVideoFrame: func(f *protocol.VideoFrame) {
			atomic.AddInt32(&frameCount, 1)
		},
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	sconn := <-accepted
	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() { serveDone <- sconn.Serve(ctx) }()

	runDone := make(chan error, 1)
	go func() { runDone <- cl.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&frameCount) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a video frame")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-serveDone
	<-runDone
}

func TestClientClipboardTriggerPushesLocalContent(t *testing.T) {
	a, b := net.Pipe()
	serverConn := transport.New(a)
	clientConn := transport.New(b)
	defer serverConn.Close()
	defer clientConn.Close()

	serverProvider := clipboard.NewMemoryProvider()
	scfg := server.Config{
		Codecs:            []session.CodecCapability{{Name: "raw", PixelFormats: []protocol.PixelFormat{protocol.PixelFormatYUV420P}}},
		ClipboardProvider: serverProvider,
		ClipboardPolicy:   protocol.ClipboardTrigger,
	}

	accepted := make(chan *server.Conn, 1)
	go func() {
		c, err := server.Accept(serverConn, scfg, "127.0.0.1:1")
		if err != nil {
			t.Errorf("server.Accept: %v", err)
			return
		}
		accepted <- c
	}()

	clientProvider := clipboard.NewMemoryProvider()
	_ = clientProvider.SetContent(clipboard.Content{Type: clipboard.ContentTypeText, Text: "hello from client"})

	cl, err := Connect(clientConn, Config{
		SupportedCodecs:        []string{"raw"},
		ClipboardProvider:      clientProvider,
		ClipboardPolicyRequest: protocol.ClipboardTrigger,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	sconn := <-accepted
	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() { serveDone <- sconn.Serve(ctx) }()
	runDone := make(chan error, 1)
	go func() { runDone <- cl.Run(ctx) }()

	cl.handleChord(input.ChordClipboardTrigger)

	deadline := time.After(time.Second)
	for {
		c, _ := serverProvider.GetContent()
		if c.Text == "hello from client" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for clipboard trigger to reach the server")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-serveDone
	<-runDone
}
