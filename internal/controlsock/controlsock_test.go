package controlsock

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func TestSendCommandRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")

	var received Command
	srv, err := Listen(path, func(c Command) string {
		received = c
		return "ok:" + c.Name
	})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	resp, err := SendCommand(path, Command{Name: "restart_encoder", Args: []string{"codec=h264"}})
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if resp != "ok:restart_encoder" {
		t.Fatalf("resp = %q, want %q", resp, "ok:restart_encoder")
	}
	if received.Name != "restart_encoder" || len(received.Args) != 1 || received.Args[0] != "codec=h264" {
		t.Fatalf("handler saw unexpected command: %+v", received)
	}
}

func TestSendCommandNoListenerFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.sock")
	if _, err := SendCommand(path, Command{Name: "ping"}); err == nil {
		t.Fatal("expected error dialing a nonexistent control socket")
	}
}

func TestServerHandlesMultipleSequentialCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")
	count := 0
	srv, err := Listen(path, func(c Command) string {
		count++
		return fmt.Sprintf("count=%d", count)
	})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	for i := 1; i <= 3; i++ {
		resp, err := SendCommand(path, Command{Name: "ping"})
		if err != nil {
			t.Fatalf("SendCommand #%d: %v", i, err)
		}
		want := fmt.Sprintf("count=%d", i)
		if resp != want {
			t.Fatalf("resp #%d = %q, want %q", i, resp, want)
		}
	}
}

func TestCloseStopsAcceptingConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")
	srv, err := Listen(path, func(c Command) string { return "ok" })
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := SendCommand(path, Command{Name: "ping"}); err == nil {
		t.Fatal("expected SendCommand to fail after Close")
	}
}
