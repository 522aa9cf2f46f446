package stats

import "testing"

func TestRateCounterFirstSampleIsZero(t *testing.T) {
	var r RateCounter
	if rate := r.Sample(1000); rate != 0 {
		t.Fatalf("first Sample() = %v, want 0", rate)
	}
}

func TestRateCounterRejectsRegression(t *testing.T) {
	var r RateCounter
	r.Sample(1000)
	if rate := r.Sample(500); rate != 0 {
		t.Fatalf("Sample() after counter regression = %v, want 0", rate)
	}
}

func TestCollectorSnapshotPopulatesSuppliedFields(t *testing.T) {
	c := NewCollector()
	c.UpdateNetwork(NetworkSample{RTTMillis: 42, PacketLoss: 0.01})

	snap := c.Snapshot(30.0, 2_000_000, 1024, 2048)
	if snap.FPSActual != 30.0 {
		t.Fatalf("FPSActual = %v, want 30.0", snap.FPSActual)
	}
	if snap.BitrateActual != 2_000_000 {
		t.Fatalf("BitrateActual = %v", snap.BitrateActual)
	}
	if snap.RTTMillis != 42 || snap.PacketLoss != 0.01 {
		t.Fatalf("network sample not reflected: %+v", snap)
	}
	if snap.BytesSentTotal != 1024 || snap.BytesRecvTotal != 2048 {
		t.Fatalf("byte counters not reflected: %+v", snap)
	}
	if snap.Goroutines == 0 {
		t.Fatal("expected a nonzero goroutine count")
	}
}
