package mock

import (
	"debug/pe"
	"encoding/binary"
	"fmt"
)

type CoffSection struct {
	Name            string
	VirtualAddress  uint32
	Characteristics uint32
	Data            []byte
}

// CoffFile is a COFF object. Names longer than eight bytes are stored as
// /<offset> references into the string table.
type CoffFile struct {
	Machine  uint16
	Sections []CoffSection
	// Strings are extra string table entries, such as import descriptors.
	Strings []string
}

func (f *CoffFile) Bytes() []byte {
	machine := f.Machine
	if machine == 0 {
		machine = pe.IMAGE_FILE_MACHINE_AMD64
	}
	strs := NewStringTable("")
	names := make([]string, len(f.Sections))
	for i, s := range f.Sections {
		if len(s.Name) > 8 {
			names[i] = fmt.Sprintf("/%d", strs.Add(s.Name)+4)
		} else {
			names[i] = s.Name
		}
	}
	for _, s := range f.Strings {
		strs.Add(s)
	}

	pos := 20 + 40*len(f.Sections)
	offsets := make([]int, len(f.Sections))
	for i, s := range f.Sections {
		offsets[i] = pos
		pos += len(s.Data)
	}
	symoff := pos

	b := NewBuilder(binary.LittleEndian)
	b.U16(machine).U16(uint16(len(f.Sections))).U32(0).U32(uint32(symoff)).U32(1).U16(0).U16(0)
	for i, s := range f.Sections {
		b.Fixed(names[i], 8)
		b.U32(0).U32(s.VirtualAddress).U32(uint32(len(s.Data))).U32(uint32(offsets[i]))
		b.U32(0).U32(0).U16(0).U16(0).U32(s.Characteristics)
	}
	for _, s := range f.Sections {
		b.Bytes(s.Data)
	}
	b.Pad(18)
	b.U32(uint32(4 + len(strs.Bytes()))).Bytes(strs.Bytes())
	return b.Out()
}

// PEFile is a minimal PE image with a .text section and an import
// directory naming Imports.
type PEFile struct {
	Machine uint16
	Entry   uint32
	Imports []string
}

const (
	peTextRVA  = 0x1000
	peIdataRVA = 0x2000
	peTextOff  = 0x200
	peIdataOff = 0x400
)

func (f *PEFile) Bytes() []byte {
	machine := f.Machine
	if machine == 0 {
		machine = pe.IMAGE_FILE_MACHINE_AMD64
	}
	wide := machine == pe.IMAGE_FILE_MACHINE_AMD64 || machine == pe.IMAGE_FILE_MACHINE_ARM64

	idata := NewBuilder(binary.LittleEndian)
	nameAt := 20 * (len(f.Imports) + 1)
	names := NewStringTable("")
	for _, dll := range f.Imports {
		off := names.Add(dll)
		idata.U32(0).U32(0).U32(0).U32(peIdataRVA + uint32(nameAt) + off).U32(peIdataRVA)
	}
	idata.Pad(20).Bytes(names.Bytes())

	b := NewBuilder(binary.LittleEndian)
	b.Bytes([]byte("MZ")).Pad(0x3c - 2).U32(0x40)
	b.Bytes([]byte("PE\x00\x00"))
	optSize, magic, dirsAt := 224, 0x10b, 96
	if wide {
		optSize, magic, dirsAt = 240, 0x20b, 112
	}
	b.U16(machine).U16(2).U32(0).U32(0).U32(0).U16(uint16(optSize)).U16(0x22)

	opt := b.Len()
	b.U16(uint16(magic)).Pad(14).U32(f.Entry)
	b.Pad(opt + dirsAt - 4 - b.Len()).U32(16)
	b.Pad(8).U32(peIdataRVA).U32(uint32(idata.Len()))
	b.Pad(opt + optSize - b.Len())

	text := []byte{0xc3, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	section := func(name string, rva, off uint32, size int) {
		b.Fixed(name, 8).U32(uint32(size)).U32(rva).U32(uint32(size)).U32(off)
		b.U32(0).U32(0).U16(0).U16(0).U32(0x40000040)
	}
	section(".text", peTextRVA, peTextOff, len(text))
	section(".idata", peIdataRVA, peIdataOff, idata.Len())
	b.Pad(peTextOff - b.Len()).Bytes(text)
	b.Pad(peIdataOff - b.Len()).Bytes(idata.Out())
	return b.Out()
}

// ImportStub is a short import library member for symbol from dll.
func ImportStub(machine uint16, symbol, dll string) []byte {
	b := NewBuilder(binary.LittleEndian)
	b.U16(0).U16(0xffff).U16(0).U16(machine).U32(0)
	b.U32(uint32(len(symbol) + len(dll) + 2)).U16(0).U16(0)
	return b.Str(symbol).Str(dll).Out()
}
