// Package input implements raw-keycode capture/injection and the three
// reserved hotkey chords, generalizing the teacher's string-keyed
// InputEvent/InputHandler pair (input.go) into spec.md's wire-level
// raw-keycode model.
package input

import "github.com/meridian-rdp/core/internal/logging"

var log = logging.L("input")

// Raw USB-HID-style keycodes for the modifiers the reserved chords test.
// Real capture backends translate OS-native scancodes into this space;
// that translation is a platform collaborator outside this package.
const (
	KeyLeftCtrl  uint32 = 0xE0
	KeyLeftAlt   uint32 = 0xE2
	KeyLeftShift uint32 = 0xE1
	KeyH         uint32 = 0x0B
	KeyC         uint32 = 0x06
	KeyS         uint32 = 0x16
)

// Chord identifies one of the three reserved hotkeys that are always
// intercepted client-side and never forwarded over the wire.
type Chord int

const (
	ChordNone Chord = iota
	ChordReleaseGrab
	ChordClipboardTrigger
	ChordToggleStats
)

func (c Chord) String() string {
	switch c {
	case ChordReleaseGrab:
		return "release_grab"
	case ChordClipboardTrigger:
		return "clipboard_trigger"
	case ChordToggleStats:
		return "toggle_stats"
	default:
		return "none"
	}
}

// ChordDetector tracks which modifier keys are currently held and
// classifies each KeyEvent as either a reserved chord (to intercept) or
// an ordinary key (to forward).
type ChordDetector struct {
	ctrl, alt, shift bool
}

// Observe updates modifier state for raw and returns the chord this key
// event completes, if any. Only key-down transitions can trigger a
// chord; the modifier keys themselves are never reported as chords.
func (d *ChordDetector) Observe(raw uint32, down bool) Chord {
	switch raw {
	case KeyLeftCtrl:
		d.ctrl = down
		return ChordNone
	case KeyLeftAlt:
		d.alt = down
		return ChordNone
	case KeyLeftShift:
		d.shift = down
		return ChordNone
	}
	if !down || !d.ctrl || !d.alt || !d.shift {
		return ChordNone
	}
	switch raw {
	case KeyH:
		return ChordReleaseGrab
	case KeyC:
		return ChordClipboardTrigger
	case KeyS:
		return ChordToggleStats
	default:
		return ChordNone
	}
}

// Capturer produces raw input events from the local OS, e.g. global
// keyboard/mouse hooks. It is a narrow interface satisfied by
// platform-specific collaborators outside this package.
type Capturer interface {
	Poll() []Event
}

// EventKind distinguishes the union of capturable local input events.
type EventKind int

const (
	EventKey EventKind = iota
	EventPointerMotion
	EventPointerButton
)

// Event is one locally captured input occurrence, pre-translation to the
// wire protocol.Message variants.
type Event struct {
	Kind       EventKind
	RawKeycode uint32
	Down       bool
	X, Y       int32
	Button     uint32
}

// Injector maps raw keycodes and pointer events back through the OS
// synthetic-input API. Real implementations are platform-specific
// collaborators (SendInput, XTestFakeKeyEvent, CGEventPost, ...).
type Injector interface {
	InjectKey(raw uint32, down bool) error
	InjectPointerMotion(x, y int32) error
	InjectPointerButton(button uint32, down bool) error
}
