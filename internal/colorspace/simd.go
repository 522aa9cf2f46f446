package colorspace

import "golang.org/x/sys/cpu"

// fastPathAvailable reports whether the process-start feature probe found
// a SIMD-capable core. There is no cgo/assembly in this build, so the
// "fast path" below is a portable Go loop restructured to process whole
// 2x2 blocks in one pass (fewer branches, better cache locality) rather
// than true vector instructions — the mandatory scalar path always
// produces identical output and is used whenever the probe is negative or
// inconclusive.
var fastPathAvailable = detectFastPath()

func detectFastPath() bool {
	if cpu.X86.HasSSE2 || cpu.X86.HasAVX2 {
		return true
	}
	if cpu.ARM64.HasASIMD {
		return true
	}
	return false
}
