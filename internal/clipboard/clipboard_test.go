package clipboard

import (
	"testing"

	"github.com/meridian-rdp/core/internal/protocol"
)

func TestPollLocalChangeReportsOnce(t *testing.T) {
	p := NewMemoryProvider()
	p.SetContent(Content{Type: ContentTypeText, Text: "hello"})
	s := NewSync(p, protocol.ClipboardBoth, DirServerToClient)

	_, ok, err := s.PollLocalChange()
	if err != nil || !ok {
		t.Fatalf("expected first poll to report change, got ok=%v err=%v", ok, err)
	}
	_, ok, err = s.PollLocalChange()
	if err != nil || ok {
		t.Fatalf("expected second poll with no change to report ok=false, got ok=%v err=%v", ok, err)
	}
}

func TestPolicyBlocksDisallowedDirection(t *testing.T) {
	p := NewMemoryProvider()
	p.SetContent(Content{Type: ContentTypeText, Text: "server text"})
	s := NewSync(p, protocol.ClipboardClientToServer, DirServerToClient)

	_, ok, err := s.PollLocalChange()
	if err != nil {
		t.Fatalf("PollLocalChange: %v", err)
	}
	if ok {
		t.Fatal("expected server->client push to be blocked under client_to_server policy")
	}
}

func TestApplyRemoteRespectsPolicy(t *testing.T) {
	p := NewMemoryProvider()
	s := NewSync(p, protocol.ClipboardServerToClient, DirClientToServer)

	err := s.ApplyRemote(Content{Type: ContentTypeText, Text: "from server"}, DirServerToClient)
	if err != nil {
		t.Fatalf("expected server->client apply to be allowed: %v", err)
	}
	got, _ := p.GetContent()
	if got.Text != "from server" {
		t.Fatalf("content = %q, want %q", got.Text, "from server")
	}

	err = s.ApplyRemote(Content{Type: ContentTypeText, Text: "from client"}, DirClientToServer)
	if err != ErrPolicyBlocked {
		t.Fatalf("expected ErrPolicyBlocked, got %v", err)
	}
}

func TestTriggerPushIgnoresPolicy(t *testing.T) {
	p := NewMemoryProvider()
	p.SetContent(Content{Type: ContentTypeText, Text: "manual copy"})
	s := NewSync(p, protocol.ClipboardTrigger, DirServerToClient)

	c, err := s.TriggerPush()
	if err != nil {
		t.Fatalf("TriggerPush: %v", err)
	}
	if c.Text != "manual copy" {
		t.Fatalf("content = %q", c.Text)
	}
}

func TestApplyRemoteAcceptsTriggeredContentUnderTriggerPolicy(t *testing.T) {
	p := NewMemoryProvider()
	s := NewSync(p, protocol.ClipboardTrigger, DirServerToClient)

	if err := s.ApplyRemote(Content{Type: ContentTypeText, Text: "pushed"}, DirClientToServer); err != nil {
		t.Fatalf("expected trigger-policy content to be applied, got %v", err)
	}
	got, _ := p.GetContent()
	if got.Text != "pushed" {
		t.Fatalf("content = %q, want %q", got.Text, "pushed")
	}
}

func TestApplyRemoteAfterSyncSuppressesEcho(t *testing.T) {
	p := NewMemoryProvider()
	s := NewSync(p, protocol.ClipboardBoth, DirServerToClient)

	if err := s.ApplyRemote(Content{Type: ContentTypeText, Text: "remote"}, DirClientToServer); err != nil {
		t.Fatalf("ApplyRemote: %v", err)
	}
	_, ok, err := s.PollLocalChange()
	if err != nil {
		t.Fatalf("PollLocalChange: %v", err)
	}
	if ok {
		t.Fatal("expected applied remote content to not be re-reported as a local change")
	}
}
