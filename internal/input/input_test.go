package input

import (
	"fmt"
	"testing"
)

func TestChordDetectorRequiresAllThreeModifiers(t *testing.T) {
	d := &ChordDetector{}
	if c := d.Observe(KeyH, true); c != ChordNone {
		t.Fatalf("expected ChordNone without modifiers held, got %v", c)
	}
}

func TestChordDetectorDetectsReleaseGrab(t *testing.T) {
	d := &ChordDetector{}
	d.Observe(KeyLeftCtrl, true)
	d.Observe(KeyLeftAlt, true)
	d.Observe(KeyLeftShift, true)
	if c := d.Observe(KeyH, true); c != ChordReleaseGrab {
		t.Fatalf("expected ChordReleaseGrab, got %v", c)
	}
}

func TestChordDetectorAllThreeChords(t *testing.T) {
	cases := []struct {
		key   uint32
		chord Chord
	}{
		{KeyH, ChordReleaseGrab},
		{KeyC, ChordClipboardTrigger},
		{KeyS, ChordToggleStats},
	}
	for _, tc := range cases {
		d := &ChordDetector{}
		d.Observe(KeyLeftCtrl, true)
		d.Observe(KeyLeftAlt, true)
		d.Observe(KeyLeftShift, true)
		if got := d.Observe(tc.key, true); got != tc.chord {
			t.Fatalf("key %x: got %v, want %v", tc.key, got, tc.chord)
		}
	}
}

func TestChordDetectorReleasingModifierClearsChord(t *testing.T) {
	d := &ChordDetector{}
	d.Observe(KeyLeftCtrl, true)
	d.Observe(KeyLeftAlt, true)
	d.Observe(KeyLeftShift, true)
	d.Observe(KeyLeftShift, false)
	if c := d.Observe(KeyH, true); c != ChordNone {
		t.Fatalf("expected ChordNone after releasing a modifier, got %v", c)
	}
}

func TestChordDetectorOrdinaryKeyIsNotAChord(t *testing.T) {
	d := &ChordDetector{}
	d.Observe(KeyLeftCtrl, true)
	d.Observe(KeyLeftAlt, true)
	d.Observe(KeyLeftShift, true)
	if c := d.Observe(0x99, true); c != ChordNone {
		t.Fatalf("expected ChordNone for unmapped key, got %v", c)
	}
}

type fakeInjector struct {
	keyErr    error
	injected  []uint32
	keyStates map[uint32]bool
}

func newFakeInjector() *fakeInjector { return &fakeInjector{keyStates: map[uint32]bool{}} }

func (f *fakeInjector) InjectKey(raw uint32, down bool) error {
	if f.keyErr != nil {
		return f.keyErr
	}
	f.injected = append(f.injected, raw)
	f.keyStates[raw] = down
	return nil
}
func (f *fakeInjector) InjectPointerMotion(x, y int32) error         { return nil }
func (f *fakeInjector) InjectPointerButton(b uint32, down bool) error { return nil }

func TestPressedKeysTracksDownAndUp(t *testing.T) {
	pk := NewPressedKeys()
	inj := newFakeInjector()

	if err := pk.Apply(inj, 0x04, true); err != nil {
		t.Fatalf("Apply down: %v", err)
	}
	if pk.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", pk.Len())
	}
	if err := pk.Apply(inj, 0x04, false); err != nil {
		t.Fatalf("Apply up: %v", err)
	}
	if pk.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after release", pk.Len())
	}
}

func TestPressedKeysReleaseAllClearsEverything(t *testing.T) {
	pk := NewPressedKeys()
	inj := newFakeInjector()

	for _, k := range []uint32{0x04, 0x05, 0x06} {
		if err := pk.Apply(inj, k, true); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	if pk.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", pk.Len())
	}

	if err := pk.ReleaseAll(inj); err != nil {
		t.Fatalf("ReleaseAll: %v", err)
	}
	if pk.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after ReleaseAll", pk.Len())
	}
	for _, k := range []uint32{0x04, 0x05, 0x06} {
		if inj.keyStates[k] {
			t.Fatalf("key %x still reported down after ReleaseAll", k)
		}
	}
}

func TestPressedKeysReleaseAllPropagatesError(t *testing.T) {
	pk := NewPressedKeys()
	inj := newFakeInjector()
	_ = pk.Apply(inj, 0x04, true)

	inj.keyErr = fmt.Errorf("injection failed")
	if err := pk.ReleaseAll(inj); err == nil {
		t.Fatal("expected ReleaseAll to propagate injector error")
	}
}
