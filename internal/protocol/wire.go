package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire field numbers. Field 1 always carries the Kind tag so a reader can
// dispatch before decoding the variant payload; field 2 carries the
// variant's own bytes, encoded with the helpers below. There is no
// generated .proto here — protowire's low-level varint/tag primitives are
// used directly, since no protoc toolchain is available.
const (
	fieldKind    = 1
	fieldPayload = 2
)

// Marshal encodes a Message into its wire-level protobuf bytes. The caller
// is expected to frame the result with an 8-byte big-endian length prefix
// (see transport.Conn).
func Marshal(m *Message) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Kind))

	payload, err := marshalPayload(m)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, payload)
	}
	return b, nil
}

// Unmarshal decodes wire bytes produced by Marshal.
func Unmarshal(data []byte) (*Message, error) {
	var kind Kind
	var payload []byte

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("protocol: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldKind:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("protocol: bad kind varint: %w", protowire.ParseError(n))
			}
			kind = Kind(v)
			data = data[n:]
		case fieldPayload:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("protocol: bad payload bytes: %w", protowire.ParseError(n))
			}
			payload = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("protocol: bad field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	m := &Message{Kind: kind}
	if err := unmarshalPayload(m, payload); err != nil {
		return nil, err
	}
	return m, nil
}

func marshalPayload(m *Message) ([]byte, error) {
	switch m.Kind {
	case KindHello:
		return marshalHello(m.Hello), nil
	case KindServerHello:
		return marshalServerHello(m.ServerHello), nil
	case KindAuthChallenge:
		return marshalAuthChallenge(m.AuthChallenge), nil
	case KindAuthResponse:
		return marshalAuthResponse(m.AuthResponse), nil
	case KindResolutionChange:
		return marshalResolutionChange(m.ResolutionChange), nil
	case KindVideoFrame:
		return marshalVideoFrame(m.VideoFrame), nil
	case KindAudioFrame:
		return marshalAudioFrame(m.AudioFrame), nil
	case KindKeyEvent:
		return marshalKeyEvent(m.KeyEvent), nil
	case KindPointerMotion:
		return marshalPointerMotion(m.PointerMotion), nil
	case KindPointerButton:
		return marshalPointerButton(m.PointerButton), nil
	case KindClipboardData:
		return marshalClipboardData(m.ClipboardData), nil
	case KindClipboardRequest:
		return marshalClipboardRequest(m.ClipboardRequest), nil
	case KindCursor:
		return marshalCursor(m.Cursor), nil
	case KindResize:
		return marshalResize(m.Resize), nil
	case KindStats:
		return marshalStats(m.Stats), nil
	case KindBye:
		return marshalBye(m.Bye), nil
	default:
		return nil, fmt.Errorf("protocol: unknown kind %d", m.Kind)
	}
}

func unmarshalPayload(m *Message, payload []byte) error {
	switch m.Kind {
	case KindHello:
		v, err := unmarshalHello(payload)
		m.Hello = v
		return err
	case KindServerHello:
		v, err := unmarshalServerHello(payload)
		m.ServerHello = v
		return err
	case KindAuthChallenge:
		v, err := unmarshalAuthChallenge(payload)
		m.AuthChallenge = v
		return err
	case KindAuthResponse:
		v, err := unmarshalAuthResponse(payload)
		m.AuthResponse = v
		return err
	case KindResolutionChange:
		v, err := unmarshalResolutionChange(payload)
		m.ResolutionChange = v
		return err
	case KindVideoFrame:
		v, err := unmarshalVideoFrame(payload)
		m.VideoFrame = v
		return err
	case KindAudioFrame:
		v, err := unmarshalAudioFrame(payload)
		m.AudioFrame = v
		return err
	case KindKeyEvent:
		v, err := unmarshalKeyEvent(payload)
		m.KeyEvent = v
		return err
	case KindPointerMotion:
		v, err := unmarshalPointerMotion(payload)
		m.PointerMotion = v
		return err
	case KindPointerButton:
		v, err := unmarshalPointerButton(payload)
		m.PointerButton = v
		return err
	case KindClipboardData:
		v, err := unmarshalClipboardData(payload)
		m.ClipboardData = v
		return err
	case KindClipboardRequest:
		v, err := unmarshalClipboardRequest(payload)
		m.ClipboardRequest = v
		return err
	case KindCursor:
		v, err := unmarshalCursor(payload)
		m.Cursor = v
		return err
	case KindResize:
		v, err := unmarshalResize(payload)
		m.Resize = v
		return err
	case KindStats:
		v, err := unmarshalStats(payload)
		m.Stats = v
		return err
	case KindBye:
		v, err := unmarshalBye(payload)
		m.Bye = v
		return err
	default:
		return fmt.Errorf("protocol: unknown kind %d", m.Kind)
	}
}
