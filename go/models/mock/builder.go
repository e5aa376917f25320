// Package mock builds small, byte-exact container files for tests.
package mock

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/lunixbochs/struc"

	"github.com/lunixbochs/objdwarf/go/stream"
)

// Builder appends fixed-width values in one byte order.
type Builder struct {
	buf   bytes.Buffer
	Order binary.ByteOrder
}

func NewBuilder(order binary.ByteOrder) *Builder {
	return &Builder{Order: order}
}

func (b *Builder) Len() int    { return b.buf.Len() }
func (b *Builder) Out() []byte { return b.buf.Bytes() }

func (b *Builder) U8(v uint8) *Builder {
	b.buf.WriteByte(v)
	return b
}

func (b *Builder) U16(v uint16) *Builder {
	var p [2]byte
	b.Order.PutUint16(p[:], v)
	b.buf.Write(p[:])
	return b
}

func (b *Builder) U32(v uint32) *Builder {
	var p [4]byte
	b.Order.PutUint32(p[:], v)
	b.buf.Write(p[:])
	return b
}

func (b *Builder) U64(v uint64) *Builder {
	var p [8]byte
	b.Order.PutUint64(p[:], v)
	b.buf.Write(p[:])
	return b
}

// Word writes a 4 or 8 byte value.
func (b *Builder) Word(wide bool, v uint64) *Builder {
	if wide {
		return b.U64(v)
	}
	return b.U32(uint32(v))
}

func (b *Builder) Bytes(p []byte) *Builder {
	b.buf.Write(p)
	return b
}

func (b *Builder) ULEB(v uint64) *Builder {
	b.buf.Write(stream.AppendULEB128(nil, v))
	return b
}

func (b *Builder) SLEB(v int64) *Builder {
	b.buf.Write(stream.AppendSLEB128(nil, v))
	return b
}

// Str writes s and a NUL terminator.
func (b *Builder) Str(s string) *Builder {
	b.buf.WriteString(s)
	b.buf.WriteByte(0)
	return b
}

// Fixed writes s NUL-padded to n bytes.
func (b *Builder) Fixed(s string, n int) *Builder {
	p := make([]byte, n)
	copy(p, s)
	b.buf.Write(p)
	return b
}

func (b *Builder) Pad(n int) *Builder {
	b.buf.Write(make([]byte, n))
	return b
}

// Align pads with zeros to a multiple of n.
func (b *Builder) Align(n int) *Builder {
	if r := b.buf.Len() % n; r != 0 {
		b.Pad(n - r)
	}
	return b
}

// Pack writes a struc-tagged struct.
func (b *Builder) Pack(v interface{}) *Builder {
	if err := struc.PackWithOrder(&b.buf, v, b.Order); err != nil {
		panic(err)
	}
	return b
}

// PutU32At patches a value that was written earlier.
func (b *Builder) PutU32At(off int, v uint32) {
	b.Order.PutUint32(b.buf.Bytes()[off:], v)
}

func (b *Builder) PutU64At(off int, v uint64) {
	b.Order.PutUint64(b.buf.Bytes()[off:], v)
}

// StringTable collects NUL-terminated strings and hands out their offsets.
type StringTable struct {
	buf  bytes.Buffer
	seen map[string]uint32
}

// NewStringTable starts with lead, typically "\x00" for ELF or " \x00" for
// Mach-O.
func NewStringTable(lead string) *StringTable {
	t := &StringTable{seen: make(map[string]uint32)}
	t.buf.WriteString(lead)
	return t
}

func (t *StringTable) Add(s string) uint32 {
	if off, ok := t.seen[s]; ok {
		return off
	}
	off := uint32(t.buf.Len())
	t.buf.WriteString(s)
	t.buf.WriteByte(0)
	t.seen[s] = off
	return off
}

func (t *StringTable) Bytes() []byte { return t.buf.Bytes() }

// TempFile writes data under the test's temporary directory.
func TempFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
