// Package protocol defines the wire message catalogue exchanged between
// server, client and proxy roles over a framed transport.Conn.
package protocol

// Kind identifies which variant of Message is carried on the wire.
type Kind uint32

const (
	KindUnknown Kind = iota
	KindHello
	KindServerHello
	KindAuthChallenge
	KindAuthResponse
	KindResolutionChange
	KindVideoFrame
	KindAudioFrame
	KindKeyEvent
	KindPointerMotion
	KindPointerButton
	KindClipboardData
	KindClipboardRequest
	KindCursor
	KindResize
	KindStats
	KindBye
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "Hello"
	case KindServerHello:
		return "ServerHello"
	case KindAuthChallenge:
		return "AuthChallenge"
	case KindAuthResponse:
		return "AuthResponse"
	case KindResolutionChange:
		return "ResolutionChange"
	case KindVideoFrame:
		return "VideoFrame"
	case KindAudioFrame:
		return "AudioFrame"
	case KindKeyEvent:
		return "KeyEvent"
	case KindPointerMotion:
		return "PointerMotion"
	case KindPointerButton:
		return "PointerButton"
	case KindClipboardData:
		return "ClipboardData"
	case KindClipboardRequest:
		return "ClipboardRequest"
	case KindCursor:
		return "Cursor"
	case KindResize:
		return "Resize"
	case KindStats:
		return "Stats"
	case KindBye:
		return "Bye"
	default:
		return "Unknown"
	}
}

// ClipboardPolicy mirrors spec.md's clipboard_policy enum.
type ClipboardPolicy uint32

const (
	ClipboardOff ClipboardPolicy = iota
	ClipboardServerToClient
	ClipboardClientToServer
	ClipboardBoth
	ClipboardTrigger
)

// PixelFormat enumerates the negotiable capture/encoder pixel formats.
type PixelFormat uint32

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatBGRX8888
	PixelFormatRGBX8888
	PixelFormatYUV420P
	PixelFormatYUV444P
	PixelFormatNV12
)

// Rect is the wire-level dirty-region type, in capture-surface coordinates.
type Rect struct {
	X, Y, W, H int32
}

// Message is the tagged union carried on the wire. Only the field(s)
// relevant to Kind are populated; this mirrors the teacher's envelope
// style: one pointer field per payload type, nil unless it matches Kind.
type Message struct {
	Kind Kind

	Hello             *Hello
	ServerHello       *ServerHello
	AuthChallenge     *AuthChallenge
	AuthResponse      *AuthResponse
	ResolutionChange  *ResolutionChange
	VideoFrame        *VideoFrame
	AudioFrame        *AudioFrame
	KeyEvent          *KeyEvent
	PointerMotion     *PointerMotion
	PointerButton     *PointerButton
	ClipboardData     *ClipboardData
	ClipboardRequest  *ClipboardRequest
	Cursor            *Cursor
	Resize            *Resize
	Stats             *Stats
	Bye               *Bye
}

type Hello struct {
	ProtoVersion           uint32
	SupportedCodecs        []string
	ScreenHintW            int32
	ScreenHintH            int32
	AudioWanted            bool
	ClipboardPolicyRequest ClipboardPolicy
}

type ServerHello struct {
	ProtoVersion          uint32
	ChosenCodecCandidates []string
	AuthMethods           []string
}

type AuthChallenge struct {
	Method string
	Nonce  []byte
}

type AuthResponse struct {
	Method   string
	Password string
	Ticket   string
	Response []byte
}

type ResolutionChange struct {
	W, H            int32
	ClipboardPolicy ClipboardPolicy
}

type VideoFrame struct {
	EncodedBytes []byte
	Width        int32
	Height       int32
	PTS          uint64
	Keyframe     bool
	DirtyRegions []Rect
}

type AudioFrame struct {
	EncodedBytes []byte
	PTS          uint64
	SampleCount  uint32
}

type KeyEvent struct {
	RawKeycode uint32
	Down       bool
}

type PointerMotion struct {
	X, Y int32
}

type PointerButton struct {
	Button uint32
	Down   bool
}

type ClipboardData struct {
	MIME  string
	Bytes []byte
}

type ClipboardRequest struct {
	MIME string
}

type Cursor struct {
	W, H   int32
	HotX   int32
	HotY   int32
	RGBA   []byte
}

type Resize struct {
	W, H int32
}

type Stats struct {
	CPUPercent     float64
	RSSBytes       uint64
	Goroutines     uint32
	FPSActual      float64
	BitrateActual  uint64
	RTTMillis      float64
	PacketLoss     float64
	BytesSentTotal uint64
	BytesRecvTotal uint64
}

type Bye struct {
	Reason string
}
