package audio

import "testing"

func TestRingBufferFIFOOrder(t *testing.T) {
	r := NewRingBuffer(4)
	r.Push([]byte{1})
	r.Push([]byte{2})
	r.Push([]byte{3})

	f, ok := r.Pop()
	if !ok || f[0] != 1 {
		t.Fatalf("expected first frame [1], got %v ok=%v", f, ok)
	}
	f, ok = r.Pop()
	if !ok || f[0] != 2 {
		t.Fatalf("expected second frame [2], got %v ok=%v", f, ok)
	}
}

func TestRingBufferDropsOldestOnOverflow(t *testing.T) {
	r := NewRingBuffer(2)
	r.Push([]byte{1})
	r.Push([]byte{2})
	r.Push([]byte{3}) // overflow: drops [1]

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if r.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", r.Dropped())
	}
	f, ok := r.Pop()
	if !ok || f[0] != 2 {
		t.Fatalf("expected oldest surviving frame [2], got %v", f)
	}
}

func TestRingBufferPopEmpty(t *testing.T) {
	r := NewRingBuffer(1)
	if _, ok := r.Pop(); ok {
		t.Fatal("expected Pop on empty buffer to report ok=false")
	}
}

type fakeCapturer struct {
	started  bool
	callback func([]byte)
}

func (f *fakeCapturer) Start(cb func([]byte)) error {
	f.started = true
	f.callback = cb
	return nil
}
func (f *fakeCapturer) Stop() { f.started = false }

func TestPipelineStartFeedsBuffer(t *testing.T) {
	cap := &fakeCapturer{}
	p := NewPipeline(cap, 8)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cap.callback(make([]byte, FrameBytes))
	cap.callback(make([]byte, FrameBytes))

	frames := p.Drain(10)
	if len(frames) != 2 {
		t.Fatalf("Drain returned %d frames, want 2", len(frames))
	}
}

func TestPipelineStartTwiceFails(t *testing.T) {
	p := NewPipeline(&fakeCapturer{}, 4)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(); err == nil {
		t.Fatal("expected second Start to fail")
	}
}

func TestPipelineNoCapturerFails(t *testing.T) {
	p := NewPipeline(nil, 4)
	if err := p.Start(); err == nil {
		t.Fatal("expected Start with nil capturer to fail")
	}
}

func TestNoopCapturerProducesNothing(t *testing.T) {
	c := NewNoopCapturer()
	called := false
	if err := c.Start(func([]byte) { called = true }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop()
	if called {
		t.Fatal("noop capturer should never invoke its callback")
	}
}
