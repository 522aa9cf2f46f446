package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Generic field numbers reused across message types below; each payload
// type defines its own local field numbering starting at 1.

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func appendSint32(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v)))
}

func appendFixed64Float(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, uint64(int64(v*1e6)))
}

func appendRect(b []byte, num protowire.Number, r Rect) []byte {
	var rb []byte
	rb = appendSint32(rb, 1, r.X)
	rb = appendSint32(rb, 2, r.Y)
	rb = appendSint32(rb, 3, r.W)
	rb = appendSint32(rb, 4, r.H)
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, rb)
}

func decodeRect(data []byte) (Rect, error) {
	var r Rect
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return r, fmt.Errorf("protocol: bad rect tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case 1, 2, 3, 4:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return r, fmt.Errorf("protocol: bad rect field: %w", protowire.ParseError(n))
			}
			val := int32(protowire.DecodeZigZag(v))
			switch num {
			case 1:
				r.X = val
			case 2:
				r.Y = val
			case 3:
				r.W = val
			case 4:
				r.H = val
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return r, fmt.Errorf("protocol: bad rect field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return r, nil
}

// fieldWalker dispatches over the top-level fields of a payload, calling
// fn for every (num, typ, value-bytes-consumed) triple. Used so every
// message's unmarshal func reads as a flat switch instead of repeating the
// ConsumeTag/ConsumeXxx boilerplate.
func fieldWalker(data []byte, fn func(num protowire.Number, typ protowire.Type, data []byte) (n int, err error)) error {
	for len(data) > 0 {
		num, typ, tn := protowire.ConsumeTag(data)
		if tn < 0 {
			return fmt.Errorf("protocol: bad tag: %w", protowire.ParseError(tn))
		}
		rest := data[tn:]
		n, err := fn(num, typ, rest)
		if err != nil {
			return err
		}
		if n < 0 {
			n = protowire.ConsumeFieldValue(num, typ, rest)
			if n < 0 {
				return fmt.Errorf("protocol: bad field %d: %w", num, protowire.ParseError(n))
			}
		}
		data = rest[n:]
	}
	return nil
}

func consumeString(data []byte) (string, int, error) {
	v, n := protowire.ConsumeString(data)
	if n < 0 {
		return "", 0, fmt.Errorf("protocol: bad string: %w", protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeBytes(data []byte) ([]byte, int, error) {
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, 0, fmt.Errorf("protocol: bad bytes: %w", protowire.ParseError(n))
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, n, nil
}

func consumeVarint(data []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, 0, fmt.Errorf("protocol: bad varint: %w", protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeSint32(data []byte) (int32, int, error) {
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, 0, fmt.Errorf("protocol: bad sint32: %w", protowire.ParseError(n))
	}
	return int32(protowire.DecodeZigZag(v)), n, nil
}

func consumeFixed64Float(data []byte) (float64, int, error) {
	v, n := protowire.ConsumeFixed64(data)
	if n < 0 {
		return 0, 0, fmt.Errorf("protocol: bad fixed64: %w", protowire.ParseError(n))
	}
	return float64(int64(v)) / 1e6, n, nil
}
