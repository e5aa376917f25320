package stream

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// decodeText turns raw section bytes into a string. Bytes that are not
// valid UTF-8 are decoded as ISO-8859-1 so malformed names never abort a
// parse.
func decodeText(raw []byte) string {
	ascii := true
	for _, b := range raw {
		if b&0x80 != 0 {
			ascii = false
			break
		}
	}
	if ascii || utf8.Valid(raw) {
		return string(raw)
	}
	if s, err := charmap.ISO8859_1.NewDecoder().Bytes(raw); err == nil {
		return string(s)
	}
	return string(raw)
}

// CString reads a NUL-terminated string. The terminator is consumed but not
// returned. A missing terminator at end of file yields the bytes read so far.
func (c *Cursor) CString() (string, error) {
	return c.CStringBefore(c.Len())
}

// CStringBefore is CString for a string that must end before the absolute
// position end, such as the end of its section. A string cut off at end is
// returned without error.
func (c *Cursor) CStringBefore(end int64) (string, error) {
	if end > c.Len() {
		end = c.Len()
	}
	var raw []byte
	for {
		left := end - c.Position()
		if left <= 0 {
			return decodeText(raw), nil
		}
		if buf := c.src.Buffer(); len(buf) > 0 {
			if int64(len(buf)) > left {
				buf = buf[:left]
			}
			if i := bytes.IndexByte(buf, 0); i >= 0 {
				raw = append(raw, buf[:i]...)
				c.src.Advance(i + 1)
				return decodeText(raw), nil
			}
			raw = append(raw, buf...)
			c.src.Advance(len(buf))
			continue
		}
		b, err := c.slowByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return decodeText(raw), nil
		}
		raw = append(raw, b)
	}
}

// PrefixedString reads a 2-byte length followed by that many bytes of text.
func (c *Cursor) PrefixedString() (string, error) {
	n, err := c.U16()
	if err != nil {
		return "", err
	}
	raw, err := c.Bytes(int(n))
	if err != nil {
		return "", err
	}
	return decodeText(raw), nil
}

// FixedString reads an n-byte field and trims it at the first NUL.
func (c *Cursor) FixedString(n int) (string, error) {
	raw, err := c.Bytes(n)
	if err != nil {
		return "", err
	}
	return TrimNul(raw), nil
}

// TrimNul decodes a fixed-width, NUL-padded name field.
func TrimNul(raw []byte) string {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return decodeText(raw)
}
