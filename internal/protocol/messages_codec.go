package protocol

import "google.golang.org/protobuf/encoding/protowire"

// --- Hello ---

func marshalHello(h *Hello) []byte {
	if h == nil {
		return nil
	}
	var b []byte
	b = appendVarint(b, 1, uint64(h.ProtoVersion))
	for _, c := range h.SupportedCodecs {
		b = appendString(b, 2, c)
	}
	b = appendSint32(b, 3, h.ScreenHintW)
	b = appendSint32(b, 4, h.ScreenHintH)
	b = appendBool(b, 5, h.AudioWanted)
	b = appendVarint(b, 6, uint64(h.ClipboardPolicyRequest))
	return b
}

func unmarshalHello(data []byte) (*Hello, error) {
	h := &Hello{}
	err := fieldWalker(data, func(num protowire.Number, typ protowire.Type, d []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(d)
			h.ProtoVersion = uint32(v)
			return n, err
		case 2:
			v, n, err := consumeString(d)
			h.SupportedCodecs = append(h.SupportedCodecs, v)
			return n, err
		case 3:
			v, n, err := consumeSint32(d)
			h.ScreenHintW = v
			return n, err
		case 4:
			v, n, err := consumeSint32(d)
			h.ScreenHintH = v
			return n, err
		case 5:
			v, n, err := consumeVarint(d)
			h.AudioWanted = v != 0
			return n, err
		case 6:
			v, n, err := consumeVarint(d)
			h.ClipboardPolicyRequest = ClipboardPolicy(v)
			return n, err
		}
		return -1, nil
	})
	return h, err
}

// --- ServerHello ---

func marshalServerHello(s *ServerHello) []byte {
	if s == nil {
		return nil
	}
	var b []byte
	b = appendVarint(b, 1, uint64(s.ProtoVersion))
	for _, c := range s.ChosenCodecCandidates {
		b = appendString(b, 2, c)
	}
	for _, m := range s.AuthMethods {
		b = appendString(b, 3, m)
	}
	return b
}

func unmarshalServerHello(data []byte) (*ServerHello, error) {
	s := &ServerHello{}
	err := fieldWalker(data, func(num protowire.Number, typ protowire.Type, d []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(d)
			s.ProtoVersion = uint32(v)
			return n, err
		case 2:
			v, n, err := consumeString(d)
			s.ChosenCodecCandidates = append(s.ChosenCodecCandidates, v)
			return n, err
		case 3:
			v, n, err := consumeString(d)
			s.AuthMethods = append(s.AuthMethods, v)
			return n, err
		}
		return -1, nil
	})
	return s, err
}

// --- AuthChallenge / AuthResponse ---

func marshalAuthChallenge(a *AuthChallenge) []byte {
	if a == nil {
		return nil
	}
	var b []byte
	b = appendString(b, 1, a.Method)
	b = appendBytesField(b, 2, a.Nonce)
	return b
}

func unmarshalAuthChallenge(data []byte) (*AuthChallenge, error) {
	a := &AuthChallenge{}
	err := fieldWalker(data, func(num protowire.Number, typ protowire.Type, d []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(d)
			a.Method = v
			return n, err
		case 2:
			v, n, err := consumeBytes(d)
			a.Nonce = v
			return n, err
		}
		return -1, nil
	})
	return a, err
}

func marshalAuthResponse(a *AuthResponse) []byte {
	if a == nil {
		return nil
	}
	var b []byte
	b = appendString(b, 1, a.Method)
	b = appendString(b, 2, a.Password)
	b = appendString(b, 3, a.Ticket)
	b = appendBytesField(b, 4, a.Response)
	return b
}

func unmarshalAuthResponse(data []byte) (*AuthResponse, error) {
	a := &AuthResponse{}
	err := fieldWalker(data, func(num protowire.Number, typ protowire.Type, d []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(d)
			a.Method = v
			return n, err
		case 2:
			v, n, err := consumeString(d)
			a.Password = v
			return n, err
		case 3:
			v, n, err := consumeString(d)
			a.Ticket = v
			return n, err
		case 4:
			v, n, err := consumeBytes(d)
			a.Response = v
			return n, err
		}
		return -1, nil
	})
	return a, err
}

// --- ResolutionChange / Resize ---

func marshalResolutionChange(r *ResolutionChange) []byte {
	if r == nil {
		return nil
	}
	var b []byte
	b = appendSint32(b, 1, r.W)
	b = appendSint32(b, 2, r.H)
	b = appendVarint(b, 3, uint64(r.ClipboardPolicy))
	return b
}

func unmarshalResolutionChange(data []byte) (*ResolutionChange, error) {
	r := &ResolutionChange{}
	err := fieldWalker(data, func(num protowire.Number, typ protowire.Type, d []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeSint32(d)
			r.W = v
			return n, err
		case 2:
			v, n, err := consumeSint32(d)
			r.H = v
			return n, err
		case 3:
			v, n, err := consumeVarint(d)
			r.ClipboardPolicy = ClipboardPolicy(v)
			return n, err
		}
		return -1, nil
	})
	return r, err
}

func marshalResize(r *Resize) []byte {
	if r == nil {
		return nil
	}
	var b []byte
	b = appendSint32(b, 1, r.W)
	b = appendSint32(b, 2, r.H)
	return b
}

func unmarshalResize(data []byte) (*Resize, error) {
	r := &Resize{}
	err := fieldWalker(data, func(num protowire.Number, typ protowire.Type, d []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeSint32(d)
			r.W = v
			return n, err
		case 2:
			v, n, err := consumeSint32(d)
			r.H = v
			return n, err
		}
		return -1, nil
	})
	return r, err
}

// --- VideoFrame ---

func marshalVideoFrame(v *VideoFrame) []byte {
	if v == nil {
		return nil
	}
	var b []byte
	b = appendBytesField(b, 1, v.EncodedBytes)
	b = appendSint32(b, 2, v.Width)
	b = appendSint32(b, 3, v.Height)
	b = appendVarint(b, 4, v.PTS)
	b = appendBool(b, 5, v.Keyframe)
	for _, r := range v.DirtyRegions {
		b = appendRect(b, 6, r)
	}
	return b
}

func unmarshalVideoFrame(data []byte) (*VideoFrame, error) {
	v := &VideoFrame{}
	err := fieldWalker(data, func(num protowire.Number, typ protowire.Type, d []byte) (int, error) {
		switch num {
		case 1:
			x, n, err := consumeBytes(d)
			v.EncodedBytes = x
			return n, err
		case 2:
			x, n, err := consumeSint32(d)
			v.Width = x
			return n, err
		case 3:
			x, n, err := consumeSint32(d)
			v.Height = x
			return n, err
		case 4:
			x, n, err := consumeVarint(d)
			v.PTS = x
			return n, err
		case 5:
			x, n, err := consumeVarint(d)
			v.Keyframe = x != 0
			return n, err
		case 6:
			rb, n, err := consumeBytes(d)
			if err != nil {
				return n, err
			}
			r, err := decodeRect(rb)
			if err != nil {
				return n, err
			}
			v.DirtyRegions = append(v.DirtyRegions, r)
			return n, nil
		}
		return -1, nil
	})
	return v, err
}

// --- AudioFrame ---

func marshalAudioFrame(a *AudioFrame) []byte {
	if a == nil {
		return nil
	}
	var b []byte
	b = appendBytesField(b, 1, a.EncodedBytes)
	b = appendVarint(b, 2, a.PTS)
	b = appendVarint(b, 3, uint64(a.SampleCount))
	return b
}

func unmarshalAudioFrame(data []byte) (*AudioFrame, error) {
	a := &AudioFrame{}
	err := fieldWalker(data, func(num protowire.Number, typ protowire.Type, d []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(d)
			a.EncodedBytes = v
			return n, err
		case 2:
			v, n, err := consumeVarint(d)
			a.PTS = v
			return n, err
		case 3:
			v, n, err := consumeVarint(d)
			a.SampleCount = uint32(v)
			return n, err
		}
		return -1, nil
	})
	return a, err
}

// --- KeyEvent / PointerMotion / PointerButton ---

func marshalKeyEvent(k *KeyEvent) []byte {
	if k == nil {
		return nil
	}
	var b []byte
	b = appendVarint(b, 1, uint64(k.RawKeycode))
	b = appendBool(b, 2, k.Down)
	return b
}

func unmarshalKeyEvent(data []byte) (*KeyEvent, error) {
	k := &KeyEvent{}
	err := fieldWalker(data, func(num protowire.Number, typ protowire.Type, d []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(d)
			k.RawKeycode = uint32(v)
			return n, err
		case 2:
			v, n, err := consumeVarint(d)
			k.Down = v != 0
			return n, err
		}
		return -1, nil
	})
	return k, err
}

func marshalPointerMotion(p *PointerMotion) []byte {
	if p == nil {
		return nil
	}
	var b []byte
	b = appendSint32(b, 1, p.X)
	b = appendSint32(b, 2, p.Y)
	return b
}

func unmarshalPointerMotion(data []byte) (*PointerMotion, error) {
	p := &PointerMotion{}
	err := fieldWalker(data, func(num protowire.Number, typ protowire.Type, d []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeSint32(d)
			p.X = v
			return n, err
		case 2:
			v, n, err := consumeSint32(d)
			p.Y = v
			return n, err
		}
		return -1, nil
	})
	return p, err
}

func marshalPointerButton(p *PointerButton) []byte {
	if p == nil {
		return nil
	}
	var b []byte
	b = appendVarint(b, 1, uint64(p.Button))
	b = appendBool(b, 2, p.Down)
	return b
}

func unmarshalPointerButton(data []byte) (*PointerButton, error) {
	p := &PointerButton{}
	err := fieldWalker(data, func(num protowire.Number, typ protowire.Type, d []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(d)
			p.Button = uint32(v)
			return n, err
		case 2:
			v, n, err := consumeVarint(d)
			p.Down = v != 0
			return n, err
		}
		return -1, nil
	})
	return p, err
}

// --- Clipboard ---

func marshalClipboardData(c *ClipboardData) []byte {
	if c == nil {
		return nil
	}
	var b []byte
	b = appendString(b, 1, c.MIME)
	b = appendBytesField(b, 2, c.Bytes)
	return b
}

func unmarshalClipboardData(data []byte) (*ClipboardData, error) {
	c := &ClipboardData{}
	err := fieldWalker(data, func(num protowire.Number, typ protowire.Type, d []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(d)
			c.MIME = v
			return n, err
		case 2:
			v, n, err := consumeBytes(d)
			c.Bytes = v
			return n, err
		}
		return -1, nil
	})
	return c, err
}

func marshalClipboardRequest(c *ClipboardRequest) []byte {
	if c == nil {
		return nil
	}
	var b []byte
	b = appendString(b, 1, c.MIME)
	return b
}

func unmarshalClipboardRequest(data []byte) (*ClipboardRequest, error) {
	c := &ClipboardRequest{}
	err := fieldWalker(data, func(num protowire.Number, typ protowire.Type, d []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(d)
			c.MIME = v
			return n, err
		}
		return -1, nil
	})
	return c, err
}

// --- Cursor ---

func marshalCursor(c *Cursor) []byte {
	if c == nil {
		return nil
	}
	var b []byte
	b = appendSint32(b, 1, c.W)
	b = appendSint32(b, 2, c.H)
	b = appendSint32(b, 3, c.HotX)
	b = appendSint32(b, 4, c.HotY)
	b = appendBytesField(b, 5, c.RGBA)
	return b
}

func unmarshalCursor(data []byte) (*Cursor, error) {
	c := &Cursor{}
	err := fieldWalker(data, func(num protowire.Number, typ protowire.Type, d []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeSint32(d)
			c.W = v
			return n, err
		case 2:
			v, n, err := consumeSint32(d)
			c.H = v
			return n, err
		case 3:
			v, n, err := consumeSint32(d)
			c.HotX = v
			return n, err
		case 4:
			v, n, err := consumeSint32(d)
			c.HotY = v
			return n, err
		case 5:
			v, n, err := consumeBytes(d)
			c.RGBA = v
			return n, err
		}
		return -1, nil
	})
	return c, err
}

// --- Stats ---

func marshalStats(s *Stats) []byte {
	if s == nil {
		return nil
	}
	var b []byte
	b = appendFixed64Float(b, 1, s.CPUPercent)
	b = appendVarint(b, 2, s.RSSBytes)
	b = appendVarint(b, 3, uint64(s.Goroutines))
	b = appendFixed64Float(b, 4, s.FPSActual)
	b = appendVarint(b, 5, s.BitrateActual)
	b = appendFixed64Float(b, 6, s.RTTMillis)
	b = appendFixed64Float(b, 7, s.PacketLoss)
	b = appendVarint(b, 8, s.BytesSentTotal)
	b = appendVarint(b, 9, s.BytesRecvTotal)
	return b
}

func unmarshalStats(data []byte) (*Stats, error) {
	s := &Stats{}
	err := fieldWalker(data, func(num protowire.Number, typ protowire.Type, d []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeFixed64Float(d)
			s.CPUPercent = v
			return n, err
		case 2:
			v, n, err := consumeVarint(d)
			s.RSSBytes = v
			return n, err
		case 3:
			v, n, err := consumeVarint(d)
			s.Goroutines = uint32(v)
			return n, err
		case 4:
			v, n, err := consumeFixed64Float(d)
			s.FPSActual = v
			return n, err
		case 5:
			v, n, err := consumeVarint(d)
			s.BitrateActual = v
			return n, err
		case 6:
			v, n, err := consumeFixed64Float(d)
			s.RTTMillis = v
			return n, err
		case 7:
			v, n, err := consumeFixed64Float(d)
			s.PacketLoss = v
			return n, err
		case 8:
			v, n, err := consumeVarint(d)
			s.BytesSentTotal = v
			return n, err
		case 9:
			v, n, err := consumeVarint(d)
			s.BytesRecvTotal = v
			return n, err
		}
		return -1, nil
	})
	return s, err
}

// --- Bye ---

func marshalBye(b2 *Bye) []byte {
	if b2 == nil {
		return nil
	}
	var b []byte
	b = appendString(b, 1, b2.Reason)
	return b
}

func unmarshalBye(data []byte) (*Bye, error) {
	b := &Bye{}
	err := fieldWalker(data, func(num protowire.Number, typ protowire.Type, d []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(d)
			b.Reason = v
			return n, err
		}
		return -1, nil
	})
	return b, err
}
