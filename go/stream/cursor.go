// Package stream decodes primitive values off a windowed source.
package stream

import (
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/lunixbochs/objdwarf/go/models"
	"github.com/lunixbochs/objdwarf/go/mmap"
)

type Order int

const (
	LittleEndian Order = iota + 1
	BigEndian
)

func (o Order) String() string {
	switch o {
	case LittleEndian:
		return "little-endian"
	case BigEndian:
		return "big-endian"
	}
	return "invalid-order"
}

// Class selects the width of pointer-sized reads.
type Class int

const (
	Class32 Class = 32
	Class64 Class = 64
)

// Cursor reads endian-aware primitives from a mmap.Source.
type Cursor struct {
	src      *mmap.Source
	order    Order
	bo       binary.ByteOrder
	class    Class
	addrSize int
}

// New returns a little-endian, 32-bit cursor over src.
func New(src *mmap.Source) *Cursor {
	return &Cursor{src: src, order: LittleEndian, bo: binary.LittleEndian, class: Class32, addrSize: 4}
}

func (c *Cursor) Source() *mmap.Source        { return c.src }
func (c *Cursor) Order() Order                { return c.order }
func (c *Cursor) ByteOrder() binary.ByteOrder { return c.bo }
func (c *Cursor) Class() Class                { return c.class }
func (c *Cursor) AddrSize() int               { return c.addrSize }
func (c *Cursor) Len() int64                  { return c.src.Len() }
func (c *Cursor) Position() int64             { return c.src.Position() }

func (c *Cursor) SetOrder(o Order) error {
	switch o {
	case LittleEndian:
		c.bo = binary.LittleEndian
	case BigEndian:
		c.bo = binary.BigEndian
	default:
		return errors.Wrapf(models.ErrConfig, "byte order %d", int(o))
	}
	c.order = o
	return nil
}

// SetClass also resets the address size to the class pointer width.
func (c *Cursor) SetClass(cl Class) error {
	switch cl {
	case Class32:
		c.addrSize = 4
	case Class64:
		c.addrSize = 8
	default:
		return errors.Wrapf(models.ErrConfig, "file class %d", int(cl))
	}
	c.class = cl
	return nil
}

func (c *Cursor) SetAddrSize(n int) error {
	if n <= 0 || n > 8 {
		return errors.Wrapf(models.ErrConfig, "address size %d", n)
	}
	c.addrSize = n
	return nil
}

func (c *Cursor) Seek(pos int64) error { return c.src.Seek(pos) }

// Skip moves the cursor n bytes forward.
func (c *Cursor) Skip(n int64) error { return c.src.Seek(c.src.Position() + n) }

// Save returns a mark for Restore. Side lookups bracket themselves with
// Save/Restore so they never disturb the caller's position.
func (c *Cursor) Save() int64 { return c.src.Position() }

func (c *Cursor) Restore(mark int64) {
	// mark came from Position so it is always in range
	c.src.Seek(mark)
}

// Read implements io.Reader so struc can unpack straight off the cursor.
func (c *Cursor) Read(p []byte) (int, error) { return c.src.Read(p) }

// Unpack decodes a struc-tagged struct in the cursor byte order.
func (c *Cursor) Unpack(v interface{}) error {
	if err := struc.UnpackWithOrder(c, v, c.bo); err != nil {
		return errors.Wrapf(err, "unpacking %T at 0x%x", v, c.Position())
	}
	return nil
}

// Bytes reads exactly n bytes.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if n < 0 || int64(n) > c.Len()-c.Position() {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "reading %d bytes at 0x%x", n, c.Position())
	}
	p := make([]byte, n)
	if _, err := io.ReadFull(c.src, p); err != nil {
		return nil, errors.Wrapf(err, "reading %d bytes", n)
	}
	return p, nil
}

// fixed returns n bytes in file order. In-window values are sliced from the
// mapped buffer directly; otherwise bytes are pulled one at a time across
// the window boundary.
func (c *Cursor) fixed(n int, scratch []byte) ([]byte, error) {
	if c.src.Remaining() >= n {
		b := c.src.Buffer()[:n]
		c.src.Advance(n)
		return b, nil
	}
	for i := 0; i < n; i++ {
		v, err := c.slowByte()
		if err != nil {
			return nil, err
		}
		scratch[i] = v
	}
	return scratch[:n], nil
}

func (c *Cursor) slowByte() (byte, error) {
	var b [1]byte
	n, err := c.src.Read(b[:])
	if n == 0 {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, errors.Wrapf(err, "read at 0x%x", c.Position())
	}
	return b[0], nil
}

// assemble builds an integer from n file-order bytes in the configured order.
func (c *Cursor) assemble(b []byte) uint64 {
	var v uint64
	if c.order == BigEndian {
		for _, x := range b {
			v = v<<8 | uint64(x)
		}
	} else {
		for i := len(b) - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
	}
	return v
}

func (c *Cursor) U8() (uint8, error) {
	if c.src.Remaining() >= 1 {
		v := c.src.Buffer()[0]
		c.src.Advance(1)
		return v, nil
	}
	return c.slowByte()
}

func (c *Cursor) U16() (uint16, error) {
	if c.src.Remaining() >= 2 {
		v := c.bo.Uint16(c.src.Buffer())
		c.src.Advance(2)
		return v, nil
	}
	var s [2]byte
	b, err := c.fixed(2, s[:])
	if err != nil {
		return 0, err
	}
	return uint16(c.assemble(b)), nil
}

func (c *Cursor) U32() (uint32, error) {
	if c.src.Remaining() >= 4 {
		v := c.bo.Uint32(c.src.Buffer())
		c.src.Advance(4)
		return v, nil
	}
	var s [4]byte
	b, err := c.fixed(4, s[:])
	if err != nil {
		return 0, err
	}
	return uint32(c.assemble(b)), nil
}

func (c *Cursor) U64() (uint64, error) {
	if c.src.Remaining() >= 8 {
		v := c.bo.Uint64(c.src.Buffer())
		c.src.Advance(8)
		return v, nil
	}
	var s [8]byte
	b, err := c.fixed(8, s[:])
	if err != nil {
		return 0, err
	}
	return c.assemble(b), nil
}

func (c *Cursor) I8() (int8, error) {
	v, err := c.U8()
	return int8(v), err
}

func (c *Cursor) I16() (int16, error) {
	v, err := c.U16()
	return int16(v), err
}

func (c *Cursor) I32() (int32, error) {
	v, err := c.U32()
	return int32(v), err
}

func (c *Cursor) I64() (int64, error) {
	v, err := c.U64()
	return int64(v), err
}

func (c *Cursor) Bool() (bool, error) {
	v, err := c.U8()
	return v != 0, err
}

// Uint reads an n-byte unsigned integer, n in 1..8.
func (c *Cursor) Uint(n int) (uint64, error) {
	switch n {
	case 1:
		v, err := c.U8()
		return uint64(v), err
	case 2:
		v, err := c.U16()
		return uint64(v), err
	case 4:
		v, err := c.U32()
		return uint64(v), err
	case 8:
		return c.U64()
	}
	if n <= 0 || n > 8 {
		return 0, errors.Wrapf(models.ErrConfig, "integer width %d", n)
	}
	var s [8]byte
	b, err := c.fixed(n, s[:])
	if err != nil {
		return 0, err
	}
	return c.assemble(b), nil
}

// Read3264 reads a pointer-sized value for the configured file class,
// zero-extended to 64 bits.
func (c *Cursor) Read3264() (uint64, error) {
	if c.class == Class64 {
		return c.U64()
	}
	v, err := c.U32()
	return uint64(v), err
}

// Addr reads an address-size value, zero-extended to 64 bits.
func (c *Cursor) Addr() (uint64, error) { return c.Uint(c.addrSize) }

// Offset reads a 4-byte, or 8-byte when dwarf64, section offset.
func (c *Cursor) Offset(dwarf64 bool) (uint64, error) {
	if dwarf64 {
		return c.U64()
	}
	v, err := c.U32()
	return uint64(v), err
}
