package input

import "sync"

// PressedKeys tracks which raw keycodes the server has injected as "down"
// on behalf of a remote client, so that on disconnect every one of them
// can be released — preventing stuck modifiers, per spec.md §4.6's
// "pressed_keys is empty at disconnect" invariant.
type PressedKeys struct {
	mu   sync.Mutex
	down map[uint32]bool
}

func NewPressedKeys() *PressedKeys {
	return &PressedKeys{down: make(map[uint32]bool)}
}

// Apply injects one key event through inj and records the resulting
// pressed/released state.
func (p *PressedKeys) Apply(inj Injector, raw uint32, down bool) error {
	if err := inj.InjectKey(raw, down); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if down {
		p.down[raw] = true
	} else {
		delete(p.down, raw)
	}
	return nil
}

// Snapshot returns the currently pressed raw keycodes.
func (p *PressedKeys) Snapshot() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uint32, 0, len(p.down))
	for k := range p.down {
		out = append(out, k)
	}
	return out
}

// Len reports how many keys are currently recorded as pressed.
func (p *PressedKeys) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.down)
}

// ReleaseAll injects a key-up for every currently pressed key and clears
// the set, returning the first injection error if any key-up failed.
// Called unconditionally on client disconnect.
func (p *PressedKeys) ReleaseAll(inj Injector) error {
	p.mu.Lock()
	pressed := make([]uint32, 0, len(p.down))
	for k := range p.down {
		pressed = append(pressed, k)
	}
	p.mu.Unlock()

	var firstErr error
	for _, raw := range pressed {
		if err := inj.InjectKey(raw, false); err != nil && firstErr == nil {
			firstErr = err
		}
		p.mu.Lock()
		delete(p.down, raw)
		p.mu.Unlock()
	}
	return firstErr
}
