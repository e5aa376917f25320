package stream

// ULEB128 decodes an unsigned LEB128 value: 7 bits per byte, little end
// first, high bit set on every byte but the last. Bits beyond 64 are dropped.
func (c *Cursor) ULEB128() (uint64, error) {
	var v uint64
	var shift uint
	for {
		b, err := c.U8()
		if err != nil {
			return 0, err
		}
		if shift < 64 {
			v |= uint64(b&0x7f) << shift
		}
		shift += 7
		if b&0x80 == 0 {
			return v, nil
		}
	}
}

// SLEB128 decodes a signed LEB128 value, sign-extending from the top bit of
// the final byte group.
func (c *Cursor) SLEB128() (int64, error) {
	var v int64
	var shift uint
	var b byte
	for {
		var err error
		b, err = c.U8()
		if err != nil {
			return 0, err
		}
		if shift < 64 {
			v |= int64(b&0x7f) << shift
		}
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		v |= -1 << shift
	}
	return v, nil
}

// AppendULEB128 and AppendSLEB128 are the matching encoders.
func AppendULEB128(p []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		p = append(p, b)
		if v == 0 {
			return p
		}
	}
}

func AppendSLEB128(p []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		p = append(p, b)
		if done {
			return p
		}
	}
}
