package mock

import (
	"debug/macho"
	"encoding/binary"
)

type MachoSection struct {
	Segment string
	Name    string
	Addr    uint64
	Data    []byte
}

// MachoFile is a thin Mach-O image. Strings, when non-nil, become the
// LC_SYMTAB string table.
type MachoFile struct {
	BigEndian bool
	Is64      bool
	Cpu       macho.Cpu
	Type      macho.Type
	Sections  []MachoSection
	Dylibs    []string
	Rpaths    []string
	Strings   []string
	// Entry, when set, adds an x86 LC_UNIXTHREAD as the last load command
	// with the instruction pointer set to it.
	Entry uint64
}

const (
	machoUnixThread = 0x5
	machoLoadDylib  = 0xc
	machoRpath      = 0x8000001c
)

func lcStrSize(s string, align int) int {
	n := len(s) + 1
	return (n + align - 1) / align * align
}

func (f *MachoFile) Bytes() []byte {
	var order binary.ByteOrder = binary.LittleEndian
	if f.BigEndian {
		order = binary.BigEndian
	}
	w := f.Is64
	cpu := f.Cpu
	if cpu == 0 {
		cpu = macho.Cpu386
		if w {
			cpu = macho.CpuAmd64
		}
	}
	typ := f.Type
	if typ == 0 {
		typ = macho.TypeExec
	}
	hdrSize, segSize, sectSize, align := 28, 56, 68, 4
	if w {
		hdrSize, segSize, sectSize, align = 32, 72, 80, 8
	}

	var segs []string
	bySeg := make(map[string][]int)
	for i, s := range f.Sections {
		if _, ok := bySeg[s.Segment]; !ok {
			segs = append(segs, s.Segment)
		}
		bySeg[s.Segment] = append(bySeg[s.Segment], i)
	}
	ncmds, cmdsSize := 0, 0
	for _, seg := range segs {
		ncmds++
		cmdsSize += segSize + sectSize*len(bySeg[seg])
	}
	if f.Strings != nil {
		ncmds++
		cmdsSize += 24
	}
	for _, d := range f.Dylibs {
		ncmds++
		cmdsSize += 24 + lcStrSize(d, align)
	}
	for _, p := range f.Rpaths {
		ncmds++
		cmdsSize += 12 + lcStrSize(p, align)
	}
	// x86_THREAD_STATE64 is 21 registers with rip at index 16,
	// i386_THREAD_STATE is 16 registers with eip at index 10
	threadRegs, threadIP, flavor := 16, 10, uint32(1)
	if w {
		threadRegs, threadIP, flavor = 21, 16, 4
	}
	threadSize := 16 + threadRegs*(align)
	if f.Entry != 0 {
		ncmds++
		cmdsSize += threadSize
	}

	pos := hdrSize + cmdsSize
	offsets := make([]int, len(f.Sections))
	for i, s := range f.Sections {
		offsets[i] = pos
		pos += len(s.Data)
	}
	var strtab []byte
	if f.Strings != nil {
		t := NewStringTable(" \x00")
		for _, s := range f.Strings {
			t.Add(s)
		}
		strtab = t.Bytes()
	}
	stroff := pos

	b := NewBuilder(order)
	magic := uint32(macho.Magic32)
	if w {
		magic = macho.Magic64
	}
	b.U32(magic).U32(uint32(cpu)).U32(3).U32(uint32(typ)).U32(uint32(ncmds)).U32(uint32(cmdsSize)).U32(0)
	if w {
		b.U32(0)
	}
	for _, seg := range segs {
		idx := bySeg[seg]
		cmd := macho.LoadCmdSegment
		if w {
			cmd = macho.LoadCmdSegment64
		}
		var vmaddr uint64
		if len(idx) > 0 {
			vmaddr = f.Sections[idx[0]].Addr
		}
		b.U32(uint32(cmd)).U32(uint32(segSize + sectSize*len(idx))).Fixed(seg, 16)
		b.Word(w, vmaddr).Word(w, 0).Word(w, 0).Word(w, 0)
		b.U32(7).U32(5).U32(uint32(len(idx))).U32(0)
		for _, i := range idx {
			s := f.Sections[i]
			b.Fixed(s.Name, 16).Fixed(seg, 16)
			b.Word(w, s.Addr).Word(w, uint64(len(s.Data)))
			b.U32(uint32(offsets[i])).U32(0).U32(0).U32(0).U32(0).U32(0).U32(0)
			if w {
				b.U32(0)
			}
		}
	}
	if f.Strings != nil {
		b.U32(uint32(macho.LoadCmdSymtab)).U32(24).U32(uint32(stroff)).U32(0).U32(uint32(stroff)).U32(uint32(len(strtab)))
	}
	for _, d := range f.Dylibs {
		b.U32(machoLoadDylib).U32(uint32(24 + lcStrSize(d, align))).U32(24).U32(2).U32(0x10000).U32(0x10000)
		b.Fixed(d, lcStrSize(d, align))
	}
	for _, p := range f.Rpaths {
		b.U32(machoRpath).U32(uint32(12 + lcStrSize(p, align))).U32(12)
		b.Fixed(p, lcStrSize(p, align))
	}
	if f.Entry != 0 {
		b.U32(machoUnixThread).U32(uint32(threadSize)).U32(flavor).U32(uint32(threadRegs * align / 4))
		for i := 0; i < threadRegs; i++ {
			v := uint64(0)
			if i == threadIP {
				v = f.Entry
			}
			b.Word(w, v)
		}
	}
	for _, s := range f.Sections {
		b.Bytes(s.Data)
	}
	b.Bytes(strtab)
	return b.Out()
}

// FatArch is one slice of a fat binary.
type FatArch struct {
	Cpu    macho.Cpu
	SubCpu uint32
	Image  []byte
}

// Fat wraps images in a universal header, each slice page aligned.
func Fat(arches ...FatArch) []byte {
	const pageAlign = 12
	b := NewBuilder(binary.BigEndian)
	b.U32(macho.MagicFat).U32(uint32(len(arches)))
	pos := 8 + 20*len(arches)
	offsets := make([]int, len(arches))
	for i, a := range arches {
		pos = (pos + 1<<pageAlign - 1) &^ (1<<pageAlign - 1)
		offsets[i] = pos
		b.U32(uint32(a.Cpu)).U32(a.SubCpu).U32(uint32(pos)).U32(uint32(len(a.Image))).U32(pageAlign)
		pos += len(a.Image)
	}
	for i, a := range arches {
		b.Pad(offsets[i] - b.Len()).Bytes(a.Image)
	}
	return b.Out()
}
