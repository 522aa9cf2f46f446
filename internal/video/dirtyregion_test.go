package video

import "testing"

func solidFrame(w, h int, r, g, b byte) []byte {
	stride := w * 4
	pix := make([]byte, stride*h)
	for i := 0; i < w*h; i++ {
		off := i * 4
		pix[off], pix[off+1], pix[off+2], pix[off+3] = b, g, r, 0xFF
	}
	return pix
}

func TestDirtyRegionDetectorFirstFrameAllDirty(t *testing.T) {
	d := NewDirtyRegionDetector(128, 128, 128*4)
	frame := solidFrame(128, 128, 10, 20, 30)
	regions := d.DirtyRegions(frame)
	if len(regions) == 0 {
		t.Fatal("expected first frame to be reported dirty")
	}
}

func TestDirtyRegionDetectorUnchangedFrameIsClean(t *testing.T) {
	d := NewDirtyRegionDetector(128, 128, 128*4)
	frame := solidFrame(128, 128, 10, 20, 30)
	d.DirtyRegions(frame)
	regions := d.DirtyRegions(frame)
	if len(regions) != 0 {
		t.Fatalf("expected no dirty regions on repeat frame, got %d", len(regions))
	}
}

func TestDirtyRegionDetectorLocalizesChange(t *testing.T) {
	w, h := 256, 256
	d := NewDirtyRegionDetector(w, h, w*4)
	base := solidFrame(w, h, 0, 0, 0)
	d.DirtyRegions(base)

	changed := make([]byte, len(base))
	copy(changed, base)
	// Paint one tile-sized block in the top-left corner only.
	for y := 0; y < tileSize; y++ {
		for x := 0; x < tileSize; x++ {
			off := (y*w + x) * 4
			changed[off], changed[off+1], changed[off+2] = 255, 255, 255
		}
	}

	regions := d.DirtyRegions(changed)
	if len(regions) != 1 {
		t.Fatalf("expected exactly one dirty region, got %d", len(regions))
	}
	r := regions[0]
	if r.X != 0 || r.Y != 0 || int(r.W) != tileSize || int(r.H) != tileSize {
		t.Fatalf("unexpected region bounds: %+v", r)
	}
}

func TestDirtyRegionDetectorStats(t *testing.T) {
	d := NewDirtyRegionDetector(64, 64, 64*4)
	frameA := solidFrame(64, 64, 1, 2, 3)
	frameB := solidFrame(64, 64, 4, 5, 6)
	d.DirtyRegions(frameA)
	d.DirtyRegions(frameA)
	d.DirtyRegions(frameB)

	total, changed := d.Stats()
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if changed != 2 {
		t.Fatalf("changed = %d, want 2", changed)
	}
}

func TestDirtyRegionDetectorResetForcesFullDirty(t *testing.T) {
	d := NewDirtyRegionDetector(64, 64, 64*4)
	frame := solidFrame(64, 64, 9, 9, 9)
	d.DirtyRegions(frame)
	if regions := d.DirtyRegions(frame); len(regions) != 0 {
		t.Fatalf("expected clean repeat frame, got %d regions", len(regions))
	}
	d.Reset()
	if regions := d.DirtyRegions(frame); len(regions) == 0 {
		t.Fatal("expected Reset to force the next frame fully dirty")
	}
}

func TestHasChangedMatchesDirtyRegions(t *testing.T) {
	d1 := NewDirtyRegionDetector(96, 96, 96*4)
	d2 := NewDirtyRegionDetector(96, 96, 96*4)
	frameA := solidFrame(96, 96, 1, 1, 1)
	frameB := solidFrame(96, 96, 2, 2, 2)

	if !d1.HasChanged(frameA) {
		t.Fatal("first HasChanged call should report change")
	}
	if len(d2.DirtyRegions(frameA)) == 0 {
		t.Fatal("first DirtyRegions call should report change")
	}
	if !d1.HasChanged(frameB) {
		t.Fatal("HasChanged should report change on new content")
	}
	if len(d2.DirtyRegions(frameB)) == 0 {
		t.Fatal("DirtyRegions should report change on new content")
	}
}
