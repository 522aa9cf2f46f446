// Package clipboard implements policy-gated clipboard synchronization
// between server and client, generalizing the teacher's local Provider
// abstraction to the server/client roles and transfer directions spec.md
// names.
package clipboard

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/meridian-rdp/core/internal/protocol"
)

type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeRTF   ContentType = "rtf"
	ContentTypeImage ContentType = "image"
)

// Content is one clipboard payload, independent of which side produced it.
type Content struct {
	Type        ContentType
	Text        string
	RTF         []byte
	Image       []byte
	ImageFormat string
}

// Provider reads and writes the local clipboard. Real OS-level
// implementations (NSPasteboard, Win32 clipboard, X11 selections) are
// external platform collaborators; this package only defines the contract
// and the policy that gates it.
type Provider interface {
	GetContent() (Content, error)
	SetContent(content Content) error
}

func fingerprint(c Content) [32]byte {
	h := sha256.New()
	h.Write([]byte(c.Type))
	h.Write([]byte(c.Text))
	h.Write(c.RTF)
	h.Write(c.Image)
	h.Write([]byte(c.ImageFormat))
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// direction identifies which side changed, used to apply ClipboardPolicy.
type direction int

const (
	DirServerToClient direction = iota
	DirClientToServer
)

// ErrPolicyBlocked is returned when a transfer is disallowed by the
// session's negotiated ClipboardPolicy.
var ErrPolicyBlocked = fmt.Errorf("clipboard: blocked by policy")

// allowed reports whether a transfer in the given direction is permitted
// under policy. Trigger-only policy permits no automatic sync; callers
// must use TriggerPush explicitly.
func allowed(policy protocol.ClipboardPolicy, dir direction) bool {
	switch policy {
	case protocol.ClipboardOff, protocol.ClipboardTrigger:
		return false
	case protocol.ClipboardServerToClient:
		return dir == DirServerToClient
	case protocol.ClipboardClientToServer:
		return dir == DirClientToServer
	case protocol.ClipboardBoth:
		return true
	default:
		return false
	}
}

// Sync watches a local Provider for changes and emits them as
// protocol.ClipboardData payloads for the transport layer to send,
// subject to the session's clipboard policy. It also applies incoming
// remote content to the local Provider.
type Sync struct {
	mu       sync.Mutex
	provider Provider
	policy   protocol.ClipboardPolicy
	lastSeen [32]byte
	haveSeen bool
	localDir direction // the direction this side's local writes count as
}

// NewSync constructs a Sync for one side of a session. localDir is the
// direction a *local* clipboard change is sent in (DirServerToClient on
// the server, DirClientToServer on the client).
func NewSync(provider Provider, policy protocol.ClipboardPolicy, localDir direction) *Sync {
	return &Sync{provider: provider, policy: policy, localDir: localDir}
}

func (s *Sync) SetPolicy(policy protocol.ClipboardPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = policy
}

// PollLocalChange checks the local clipboard and, if it changed since the
// last poll and the policy allows outbound sync, returns the content to
// send. ok is false when there's nothing new to send.
func (s *Sync) PollLocalChange() (content Content, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provider == nil {
		return Content{}, false, nil
	}
	if !allowed(s.policy, s.localDir) {
		return Content{}, false, nil
	}
	c, err := s.provider.GetContent()
	if err != nil {
		return Content{}, false, fmt.Errorf("clipboard: read local content: %w", err)
	}
	fp := fingerprint(c)
	if s.haveSeen && fp == s.lastSeen {
		return Content{}, false, nil
	}
	s.lastSeen = fp
	s.haveSeen = true
	return c, true, nil
}

// ApplyRemote writes remote content to the local clipboard if the policy
// permits receiving it from remoteDir, and records its fingerprint so the
// next PollLocalChange doesn't immediately echo it back. Under
// ClipboardTrigger, PollLocalChange never sends automatically (allowed
// always returns false for it), so any ClipboardData that does arrive can
// only have come from the sender's explicit TriggerPush — it is applied
// unconditionally rather than blocked like an automatic-policy mismatch.
func (s *Sync) ApplyRemote(c Content, remoteDir direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.policy != protocol.ClipboardTrigger && !allowed(s.policy, remoteDir) {
		return ErrPolicyBlocked
	}
	if s.provider == nil {
		return fmt.Errorf("clipboard: no local provider configured")
	}
	if err := s.provider.SetContent(c); err != nil {
		return fmt.Errorf("clipboard: write local content: %w", err)
	}
	s.lastSeen = fingerprint(c)
	s.haveSeen = true
	return nil
}

// TriggerPush forces a one-shot send regardless of the policy's automatic
// direction, for ClipboardTrigger mode's explicit user-initiated copy.
func (s *Sync) TriggerPush() (Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provider == nil {
		return Content{}, fmt.Errorf("clipboard: no local provider configured")
	}
	c, err := s.provider.GetContent()
	if err != nil {
		return Content{}, fmt.Errorf("clipboard: read local content: %w", err)
	}
	s.lastSeen = fingerprint(c)
	s.haveSeen = true
	return c, nil
}

func ToWireContentType(t ContentType) string { return string(t) }

func FromWireContentType(s string) ContentType { return ContentType(s) }
