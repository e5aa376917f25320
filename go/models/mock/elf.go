package mock

import (
	"debug/elf"
	"encoding/binary"
)

type ElfSection struct {
	Name  string
	Type  elf.SectionType
	Flags uint64
	Addr  uint64
	// Link and Info are indexes into ElfFile.Sections plus one, since the
	// null section comes first.
	Link    uint32
	Info    uint32
	EntSize uint64
	Data    []byte
}

// ElfProg covers the file extent of the named section.
type ElfProg struct {
	Type    elf.ProgType
	Flags   elf.ProgFlag
	Vaddr   uint64
	Section string
}

type ElfFile struct {
	Class64   bool
	BigEndian bool
	Type      elf.Type
	Machine   elf.Machine
	Entry     uint64
	Sections  []ElfSection
	Progs     []ElfProg
	// NoSectionHeaders leaves only program headers, like a stripped loader
	// image.
	NoSectionHeaders bool
	// NoNames omits .shstrtab.
	NoNames bool
}

// Elf64LE is a little-endian x86_64 relocatable object holding sections.
func Elf64LE(sections ...ElfSection) []byte {
	f := &ElfFile{Class64: true, Type: elf.ET_REL, Machine: elf.EM_X86_64, Sections: sections}
	return f.Bytes()
}

func (f *ElfFile) order() binary.ByteOrder {
	if f.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (f *ElfFile) Bytes() []byte {
	w := f.Class64
	ehsize, phentsize, shentsize := 52, 32, 40
	if w {
		ehsize, phentsize, shentsize = 64, 56, 64
	}
	machine := f.Machine
	if machine == 0 {
		machine = elf.EM_386
		if w {
			machine = elf.EM_X86_64
		}
	}
	typ := f.Type
	if typ == 0 {
		typ = elf.ET_EXEC
	}

	names := NewStringTable("\x00")
	nameOffs := make([]uint32, len(f.Sections))
	for i, s := range f.Sections {
		nameOffs[i] = names.Add(s.Name)
	}
	shstrName := names.Add(".shstrtab")

	// section data follows the program headers, 8-aligned
	pos := ehsize + len(f.Progs)*phentsize
	offsets := make([]int, len(f.Sections))
	byName := make(map[string]int)
	for i, s := range f.Sections {
		pos = (pos + 7) &^ 7
		offsets[i] = pos
		byName[s.Name] = i
		pos += len(s.Data)
	}
	shstrOff := pos
	if !f.NoNames {
		pos += len(names.Bytes())
	}
	pos = (pos + 7) &^ 7
	shoff := pos
	shnum := len(f.Sections) + 1
	shstrndx := 0
	if !f.NoNames {
		shstrndx = shnum
		shnum++
	}
	if f.NoSectionHeaders {
		shoff, shnum, shstrndx = 0, 0, 0
	}

	b := NewBuilder(f.order())
	class, data := elf.ELFCLASS32, elf.ELFDATA2LSB
	if w {
		class = elf.ELFCLASS64
	}
	if f.BigEndian {
		data = elf.ELFDATA2MSB
	}
	b.Bytes([]byte{0x7f, 'E', 'L', 'F', byte(class), byte(data), byte(elf.EV_CURRENT)}).Pad(9)
	b.U16(uint16(typ)).U16(uint16(machine)).U32(uint32(elf.EV_CURRENT))
	b.Word(w, f.Entry)
	phoff := 0
	if len(f.Progs) > 0 {
		phoff = ehsize
	}
	b.Word(w, uint64(phoff)).Word(w, uint64(shoff))
	b.U32(0).U16(uint16(ehsize)).U16(uint16(phentsize)).U16(uint16(len(f.Progs)))
	b.U16(uint16(shentsize)).U16(uint16(shnum)).U16(uint16(shstrndx))

	for _, p := range f.Progs {
		var off, size uint64
		if i, ok := byName[p.Section]; ok {
			off, size = uint64(offsets[i]), uint64(len(f.Sections[i].Data))
		}
		if w {
			b.U32(uint32(p.Type)).U32(uint32(p.Flags))
			b.U64(off).U64(p.Vaddr).U64(p.Vaddr).U64(size).U64(size).U64(8)
		} else {
			b.U32(uint32(p.Type)).U32(uint32(off)).U32(uint32(p.Vaddr)).U32(uint32(p.Vaddr))
			b.U32(uint32(size)).U32(uint32(size)).U32(uint32(p.Flags)).U32(4)
		}
	}
	for i, s := range f.Sections {
		b.Pad(offsets[i] - b.Len())
		b.Bytes(s.Data)
	}
	if !f.NoNames {
		b.Bytes(names.Bytes())
	}
	if f.NoSectionHeaders {
		return b.Out()
	}
	b.Align(8)

	section := func(name uint32, typ elf.SectionType, flags, addr uint64, off, size int, link, info uint32, entsize uint64) {
		if w {
			b.U32(name).U32(uint32(typ)).U64(flags).U64(addr).U64(uint64(off)).U64(uint64(size))
			b.U32(link).U32(info).U64(1).U64(entsize)
		} else {
			b.U32(name).U32(uint32(typ)).U32(uint32(flags)).U32(uint32(addr)).U32(uint32(off)).U32(uint32(size))
			b.U32(link).U32(info).U32(1).U32(uint32(entsize))
		}
	}
	b.Pad(shentsize)
	for i, s := range f.Sections {
		section(nameOffs[i], s.Type, s.Flags, s.Addr, offsets[i], len(s.Data), s.Link, s.Info, s.EntSize)
	}
	if !f.NoNames {
		section(shstrName, elf.SHT_STRTAB, 0, 0, shstrOff, len(names.Bytes()), 0, 0, 0)
	}
	return b.Out()
}

// ElfSym is a symbol for ElfSymtab. Section is a header index.
type ElfSym struct {
	Name    string
	Value   uint64
	Size    uint64
	Info    uint8
	Section uint16
}

// ElfSymtab encodes a symbol table and its string table. The null symbol is
// added first.
func ElfSymtab(class64 bool, order binary.ByteOrder, syms ...ElfSym) (symtab, strtab []byte) {
	names := NewStringTable("\x00")
	b := NewBuilder(order)
	all := append([]ElfSym{{}}, syms...)
	for _, s := range all {
		var name uint32
		if s.Name != "" {
			name = names.Add(s.Name)
		}
		if class64 {
			b.U32(name).U8(s.Info).U8(0).U16(s.Section).U64(s.Value).U64(s.Size)
		} else {
			b.U32(name).U32(uint32(s.Value)).U32(uint32(s.Size)).U8(s.Info).U8(0).U16(s.Section)
		}
	}
	return b.Out(), names.Bytes()
}

// ElfRel is one relocation for ElfRela.
type ElfRel struct {
	Offset uint64
	Sym    uint32
	Type   uint32
	Addend int64
}

// ElfRela encodes a 64-bit RELA table.
func ElfRela(order binary.ByteOrder, rels ...ElfRel) []byte {
	b := NewBuilder(order)
	for _, r := range rels {
		b.U64(r.Offset).U64(uint64(r.Sym)<<32 | uint64(r.Type)).U64(uint64(r.Addend))
	}
	return b.Out()
}

// ElfDyn encodes (tag, value) pairs followed by DT_NULL.
func ElfDyn(class64 bool, order binary.ByteOrder, pairs ...uint64) []byte {
	b := NewBuilder(order)
	for _, v := range pairs {
		b.Word(class64, v)
	}
	return b.Word(class64, 0).Word(class64, 0).Out()
}
