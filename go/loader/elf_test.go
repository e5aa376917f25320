package loader

import (
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lunixbochs/objdwarf/go/models"
	"github.com/lunixbochs/objdwarf/go/models/mock"
	"github.com/lunixbochs/objdwarf/go/stream"
)

func TestElf64Sections(t *testing.T) {
	data := mock.Elf64LE(
		mock.ElfSection{Name: ".text", Type: elf.SHT_PROGBITS, Data: []byte{0x90, 0xc3}},
		mock.ElfSection{Name: ".debug_str", Type: elf.SHT_PROGBITS, Data: []byte("\x00int\x00")},
	)
	r := openBytes(t, "a.o", data)
	if r.Format() != models.FormatELF {
		t.Fatalf("format %s", r.Format())
	}
	if r.AddrSize() != 8 || r.Class() != stream.Class64 || r.Order() != stream.LittleEndian {
		t.Fatalf("bad cursor state: addr=%d class=%d order=%s", r.AddrSize(), r.Class(), r.Order())
	}
	if r.Arch() != "x86_64" || elf.Type(r.FileType()) != elf.ET_REL {
		t.Fatalf("arch %q type %d", r.Arch(), r.FileType())
	}
	var names []string
	for _, h := range r.Headers() {
		names = append(names, h.Name)
	}
	if diff := cmp.Diff([]string{"", ".text", ".debug_str", ".shstrtab"}, names); diff != "" {
		t.Fatalf("section names (-want +got):\n%s", diff)
	}
	if i, ok := r.SectionIndex(".debug_str"); !ok || i != 2 {
		t.Fatalf("SectionIndex = %d, %v", i, ok)
	}
	p, err := r.SectionData(".debug_str")
	if err != nil {
		t.Fatal(err)
	}
	if string(p) != "\x00int\x00" {
		t.Fatalf("section data %q", p)
	}
}

func TestElf32BigEndian(t *testing.T) {
	f := &mock.ElfFile{
		BigEndian: true,
		Machine:   elf.EM_PPC,
		Entry:     0x10000074,
		Sections:  []mock.ElfSection{{Name: ".debug_info", Type: elf.SHT_PROGBITS, Data: make([]byte, 11)}},
	}
	r := openBytes(t, "ppc", f.Bytes())
	if r.AddrSize() != 4 || r.Order() != stream.BigEndian || r.Bits() != 32 {
		t.Fatalf("bad cursor state: addr=%d order=%s bits=%d", r.AddrSize(), r.Order(), r.Bits())
	}
	if r.Arch() != "ppc" || r.Entry() != 0x10000074 {
		t.Fatalf("arch %q entry 0x%x", r.Arch(), r.Entry())
	}
	h, ok := r.SectionHeader(1)
	if !ok || h.Name != ".debug_info" || h.Size != 11 {
		t.Fatalf("section 1: %v", h)
	}
}

func TestElfWithoutNameTable(t *testing.T) {
	f := &mock.ElfFile{
		Class64:  true,
		NoNames:  true,
		Sections: []mock.ElfSection{{Name: ".text", Type: elf.SHT_PROGBITS, Data: []byte{1}}},
	}
	r := openBytes(t, "nonames", f.Bytes())
	if r.NumSections() != 2 {
		t.Fatalf("%d sections", r.NumSections())
	}
	h, _ := r.SectionHeader(1)
	if h.Name != elfNoStrtab {
		t.Fatalf("name %q, want placeholder", h.Name)
	}
	if _, ok := r.SectionIndex(".text"); ok {
		t.Fatal("found .text without a name table")
	}
}

func TestElfSharedLibraries(t *testing.T) {
	strs := mock.NewStringTable("\x00")
	libc := strs.Add("libc.so.6")
	libm := strs.Add("libm.so.6")
	rpath := strs.Add("/opt/lib:$ORIGIN/../lib")
	runpath := strs.Add("/opt/lib")
	dyn := mock.ElfDyn(true, binary.LittleEndian,
		uint64(elf.DT_NEEDED), uint64(libc),
		uint64(elf.DT_RPATH), uint64(rpath),
		uint64(elf.DT_NEEDED), uint64(libm),
		uint64(elf.DT_RUNPATH), uint64(runpath),
	)
	f := &mock.ElfFile{
		Class64: true,
		Type:    elf.ET_DYN,
		Sections: []mock.ElfSection{
			{Name: ".dynstr", Type: elf.SHT_STRTAB, Data: strs.Bytes()},
			{Name: ".dynamic", Type: elf.SHT_DYNAMIC, Link: 1, EntSize: 16, Data: dyn},
		},
	}
	r := openBytes(t, "libfoo.so", f.Bytes())
	mark := r.Cursor().Position()
	libs, err := r.SharedLibraries()
	if err != nil {
		t.Fatal(err)
	}
	if r.Cursor().Position() != mark {
		t.Fatalf("cursor moved from 0x%x to 0x%x", mark, r.Cursor().Position())
	}
	want := &models.SharedLibs{
		Deps:  []string{"libc.so.6", "libm.so.6"},
		Paths: []string{"/opt/lib", "$ORIGIN/../lib"},
	}
	if diff := cmp.Diff(want, libs); diff != "" {
		t.Fatalf("shared libs (-want +got):\n%s", diff)
	}
	libs.Deps[0] = "mutated"
	again, _ := r.SharedLibraries()
	if again.Deps[0] != "libc.so.6" {
		t.Fatal("SharedLibraries returned the internal record")
	}
}

func TestElfDynamicFromProgramHeaders(t *testing.T) {
	strs := mock.NewStringTable("\x00")
	libz := strs.Add("libz.so.1")
	const strAddr = 0x400200
	dyn := mock.ElfDyn(false, binary.LittleEndian,
		uint64(elf.DT_STRTAB), strAddr,
		uint64(elf.DT_STRSZ), uint64(len(strs.Bytes())),
		uint64(elf.DT_NEEDED), uint64(libz),
	)
	f := &mock.ElfFile{
		Type:             elf.ET_EXEC,
		NoSectionHeaders: true,
		Sections: []mock.ElfSection{
			{Name: ".dynstr", Data: strs.Bytes()},
			{Name: ".dynamic", Data: dyn},
		},
		Progs: []mock.ElfProg{
			{Type: elf.PT_LOAD, Flags: elf.PF_R, Vaddr: strAddr, Section: ".dynstr"},
			{Type: elf.PT_DYNAMIC, Flags: elf.PF_R, Vaddr: 0x400300, Section: ".dynamic"},
		},
	}
	r := openBytes(t, "stripped", f.Bytes())
	if len(r.Progs()) != 2 || r.NumSections() != 0 {
		t.Fatalf("%d progs, %d sections", len(r.Progs()), r.NumSections())
	}
	libs, err := r.SharedLibraries()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"libz.so.1"}, libs.Deps); diff != "" {
		t.Fatalf("deps (-want +got):\n%s", diff)
	}
}

func TestElfSymbolTable(t *testing.T) {
	symtab, strtab := mock.ElfSymtab(true, binary.LittleEndian,
		mock.ElfSym{Name: "main", Value: 0x1130, Size: 42, Info: byte(elf.STB_GLOBAL)<<4 | byte(elf.STT_FUNC), Section: 1},
		mock.ElfSym{Name: ".debug_str", Info: byte(elf.STT_SECTION), Section: 2},
	)
	data := mock.Elf64LE(
		mock.ElfSection{Name: ".strtab", Type: elf.SHT_STRTAB, Data: strtab},
		mock.ElfSection{Name: ".symtab", Type: elf.SHT_SYMTAB, Link: 1, EntSize: 24, Data: symtab},
	)
	r := openBytes(t, "syms.o", data)
	sec, err := r.Section(".symtab")
	if err != nil {
		t.Fatal(err)
	}
	st, ok := sec.(*SymbolTable)
	if !ok {
		t.Fatalf("decoder %T", sec)
	}
	syms, err := st.Symbols()
	if err != nil {
		t.Fatal(err)
	}
	if len(syms) != 3 || syms[0].Name != "" {
		t.Fatalf("symbols: %+v", syms)
	}
	sym, ok := st.Lookup("main")
	want := Symbol{Name: "main", Value: 0x1130, Size: 42, Type: uint8(elf.STT_FUNC), Bind: uint8(elf.STB_GLOBAL), Section: 1}
	if !ok || sym != want {
		t.Fatalf("main = %+v, want %+v", sym, want)
	}
}

func TestElfRelocations(t *testing.T) {
	symtab, strtab := mock.ElfSymtab(true, binary.LittleEndian,
		mock.ElfSym{Name: ".debug_str", Info: byte(elf.STT_SECTION), Section: 4},
	)
	rela := mock.ElfRela(binary.LittleEndian,
		mock.ElfRel{Offset: 0x8, Sym: 1, Type: uint32(elf.R_X86_64_32), Addend: 0x1d},
		mock.ElfRel{Offset: 0xc, Sym: 1, Type: uint32(elf.R_X86_64_32), Addend: 0x2a},
	)
	data := mock.Elf64LE(
		mock.ElfSection{Name: ".strtab", Type: elf.SHT_STRTAB, Data: strtab},
		mock.ElfSection{Name: ".symtab", Type: elf.SHT_SYMTAB, Link: 1, EntSize: 24, Data: symtab},
		mock.ElfSection{Name: ".rela.debug_info", Type: elf.SHT_RELA, Link: 2, Info: 4, EntSize: 24, Data: rela},
		mock.ElfSection{Name: ".debug_info", Type: elf.SHT_PROGBITS, Data: make([]byte, 16)},
	)
	r := openBytes(t, "rel.o", data)
	i, _ := r.SectionIndex(".rela.debug_info")
	sec, err := r.SectionAt(i)
	if err != nil {
		t.Fatal(err)
	}
	rt, ok := sec.(*RelocationTable)
	if !ok {
		t.Fatalf("decoder %T", sec)
	}
	rels, err := rt.Relocations()
	if err != nil {
		t.Fatal(err)
	}
	if len(rels) != 2 || rels[1].Sym != 1 || rels[1].Addend != 0x2a {
		t.Fatalf("relocations: %+v", rels)
	}
	for _, test := range []struct{ off, in, want uint64 }{
		{0x8, 0, 0x1d},
		{0xc, 0, 0x2a},
		{0x10, 7, 7},
	} {
		got, err := rt.Apply(test.off, test.in)
		if err != nil {
			t.Fatal(err)
		}
		if got != test.want {
			t.Fatalf("Apply(0x%x) = 0x%x, want 0x%x", test.off, got, test.want)
		}
	}
}
