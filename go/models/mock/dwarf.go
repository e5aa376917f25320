package mock

import (
	"debug/dwarf"
	"encoding/binary"
)

// InitialLength writes a DWARF unit length placeholder. The returned func
// patches it to cover everything written after the field.
func (b *Builder) InitialLength(dwarf64 bool) (done func()) {
	if dwarf64 {
		b.U32(0xffffffff)
		mark := b.Len()
		b.U64(0)
		return func() { b.PutU64At(mark, uint64(b.Len()-mark-8)) }
	}
	mark := b.Len()
	b.U32(0)
	return func() { b.PutU32At(mark, uint32(b.Len()-mark-4)) }
}

// DwarfAttr is one attribute specification. Const is the value of
// implicit_const (0x21) attributes.
type DwarfAttr struct {
	Attr  dwarf.Attr
	Form  uint16
	Const int64
}

type DwarfAbbrev struct {
	Code     uint64
	Tag      dwarf.Tag
	Children bool
	Attrs    []DwarfAttr
}

// DwarfAbbrevs encodes one abbreviation list, terminated by a zero code.
func DwarfAbbrevs(abbrevs ...DwarfAbbrev) []byte {
	b := NewBuilder(binary.LittleEndian)
	for _, a := range abbrevs {
		b.ULEB(a.Code).ULEB(uint64(a.Tag))
		if a.Children {
			b.U8(1)
		} else {
			b.U8(0)
		}
		for _, at := range a.Attrs {
			b.ULEB(uint64(at.Attr)).ULEB(uint64(at.Form))
			if at.Form == 0x21 {
				b.SLEB(at.Const)
			}
		}
		b.U8(0).U8(0)
	}
	return b.U8(0).Out()
}

// DwarfUnit wraps an encoded entry list in a .debug_info unit header.
type DwarfUnit struct {
	Version   int
	Dwarf64   bool
	AddrSize  int
	Type      uint8
	AbbrevOff uint64
	Entries   []byte
}

// HeaderSize is the offset of the first entry from the start of the unit.
func (u *DwarfUnit) HeaderSize() int {
	n := 4 + 2 + 1 + 4
	if u.Dwarf64 {
		n += 8 + 4
	}
	if u.Version >= 5 {
		n++
	}
	return n
}

func (u *DwarfUnit) Bytes(order binary.ByteOrder) []byte {
	b := NewBuilder(order)
	done := b.InitialLength(u.Dwarf64)
	b.U16(uint16(u.Version))
	if u.Version >= 5 {
		typ := u.Type
		if typ == 0 {
			typ = 1
		}
		b.U8(typ).U8(uint8(u.AddrSize)).Word(u.Dwarf64, u.AbbrevOff)
	} else {
		b.Word(u.Dwarf64, u.AbbrevOff).U8(uint8(u.AddrSize))
	}
	b.Bytes(u.Entries)
	done()
	return b.Out()
}

type DwarfLineFile struct {
	Name string
	Dir  uint64
}

// DwarfLine is a line number program. DWARF 5 tables encode paths inline,
// or through LineStr with DW_FORM_line_strp when it is set.
type DwarfLine struct {
	Version       int
	Dwarf64       bool
	AddrSize      int
	MinInst       uint8
	DefaultIsStmt bool
	LineBase      int8
	LineRange     uint8
	OpcodeBase    uint8
	Dirs          []string
	Files         []DwarfLineFile
	LineStr       *StringTable
	Program       []byte
}

var stdOpcodeLengths = []uint8{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1}

func (l *DwarfLine) path(b *Builder, s string) {
	if l.LineStr != nil {
		b.Word(l.Dwarf64, uint64(l.LineStr.Add(s)))
	} else {
		b.Str(s)
	}
}

func (l *DwarfLine) Bytes(order binary.ByteOrder) []byte {
	b := NewBuilder(order)
	done := b.InitialLength(l.Dwarf64)
	b.U16(uint16(l.Version))
	if l.Version >= 5 {
		b.U8(uint8(l.AddrSize)).U8(0)
	}
	mark := b.Len()
	b.Word(l.Dwarf64, 0)
	start := b.Len()
	b.U8(l.MinInst)
	if l.Version >= 4 {
		b.U8(1)
	}
	stmt := uint8(0)
	if l.DefaultIsStmt {
		stmt = 1
	}
	b.U8(stmt).U8(uint8(l.LineBase)).U8(l.LineRange).U8(l.OpcodeBase)
	for i := 1; i < int(l.OpcodeBase); i++ {
		if i <= len(stdOpcodeLengths) {
			b.U8(stdOpcodeLengths[i-1])
		} else {
			b.U8(0)
		}
	}
	if l.Version >= 5 {
		pathForm := uint64(0x08)
		if l.LineStr != nil {
			pathForm = 0x1f
		}
		b.U8(1).ULEB(1).ULEB(pathForm)
		b.ULEB(uint64(len(l.Dirs)))
		for _, d := range l.Dirs {
			l.path(b, d)
		}
		b.U8(2).ULEB(1).ULEB(pathForm).ULEB(2).ULEB(0x0f)
		b.ULEB(uint64(len(l.Files)))
		for _, f := range l.Files {
			l.path(b, f.Name)
			b.ULEB(f.Dir)
		}
	} else {
		for _, d := range l.Dirs {
			b.Str(d)
		}
		b.U8(0)
		for _, f := range l.Files {
			b.Str(f.Name).ULEB(f.Dir).ULEB(0).ULEB(0)
		}
		b.U8(0)
	}
	if l.Dwarf64 {
		b.PutU64At(mark, uint64(b.Len()-start))
	} else {
		b.PutU32At(mark, uint32(b.Len()-start))
	}
	b.Bytes(l.Program)
	done()
	return b.Out()
}
