package video

import "github.com/meridian-rdp/core/internal/protocol"

// softwareBackend is a literal passthrough: Encode copies its input to one
// output Packet unchanged. It stands in for a real codec library (x264,
// vpx, ...), which spec.md treats as an external black box reached only
// through the Backend interface in encoder.go.
type softwareBackend struct {
	forceKeyframe bool
}

func newSoftwareBackend() *softwareBackend {
	return &softwareBackend{}
}

func (b *softwareBackend) Name() string     { return "software" }
func (b *softwareBackend) IsHardware() bool { return false }

func (b *softwareBackend) Configure(codec string, width, height int, format protocol.PixelFormat, options map[string]string) error {
	b.forceKeyframe = true
	return nil
}

func (b *softwareBackend) Encode(frame []byte) ([]Packet, error) {
	out := make([]byte, len(frame))
	copy(out, frame)
	kf := b.forceKeyframe
	b.forceKeyframe = false
	return []Packet{{Data: out, Keyframe: kf}}, nil
}

func (b *softwareBackend) SetBitrate(bps int) error         { return nil }
func (b *softwareBackend) SetQuality(q QualityPreset) error { return nil }
func (b *softwareBackend) SetFPS(fps int) error             { return nil }

func (b *softwareBackend) ForceKeyframe() error {
	b.forceKeyframe = true
	return nil
}

func (b *softwareBackend) Close() error { return nil }
