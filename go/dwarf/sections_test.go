package dwarf

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/lunixbochs/objdwarf/go/models"
	"github.com/lunixbochs/objdwarf/go/models/mock"
)

func TestAranges(t *testing.T) {
	b := mock.NewBuilder(le)
	done := b.InitialLength(false)
	b.U16(2).U32(0).U8(8).U8(0).Align(16)
	b.U64(0x401000).U64(0x20).U64(0x402000).U64(0x10).U64(0).U64(0)
	done()
	second := b.Len()
	done = b.InitialLength(false)
	b.U16(2).U32(0x40).U8(4).U8(0).Align(8)
	b.U32(0x1000).U32(0x10).U32(0).U32(0)
	done()

	d := openDwarf(t, mock.Elf64LE(progbits(".debug_aranges", b.Out())))
	aranges, err := d.Aranges()
	if err != nil || aranges == nil {
		t.Fatalf("Aranges() = %v, %v", aranges, err)
	}
	sets, err := aranges.Sets()
	if err != nil {
		t.Fatal(err)
	}
	if len(sets) != 2 {
		t.Fatalf("%d sets", len(sets))
	}
	if diff := cmp.Diff([]Arange{{0x401000, 0x20}, {0x402000, 0x10}}, sets[0].Ranges); diff != "" {
		t.Fatalf("set 0 (-want +got):\n%s", diff)
	}
	s := sets[1]
	if s.Offset != int64(second) || s.InfoOffset != 0x40 || s.AddrSize != 4 {
		t.Fatalf("set 1 %+v", s)
	}
	if diff := cmp.Diff([]Arange{{0x1000, 0x10}}, s.Ranges); diff != "" {
		t.Fatalf("set 1 (-want +got):\n%s", diff)
	}
}

func TestPubNames(t *testing.T) {
	b := mock.NewBuilder(le)
	done := b.InitialLength(false)
	b.U16(2).U32(0).U32(0x3a)
	b.U32(0x2a).Str("main")
	b.U32(0x31).Str("counter")
	b.U32(0)
	done()

	d := openDwarf(t, mock.Elf64LE(progbits(".debug_pubnames", b.Out())))
	pub, err := d.PubNames()
	if err != nil || pub == nil {
		t.Fatalf("PubNames() = %v, %v", pub, err)
	}
	sets, err := pub.Sets()
	if err != nil {
		t.Fatal(err)
	}
	if len(sets) != 1 || sets[0].InfoLength != 0x3a {
		t.Fatalf("sets %+v", sets)
	}
	want := []PubName{{0x2a, "main"}, {0x31, "counter"}}
	if diff := cmp.Diff(want, sets[0].Names); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	if _, n, ok := pub.Lookup("counter"); !ok || n.Offset != 0x31 {
		t.Fatalf("Lookup(counter) = %+v, %v", n, ok)
	}
	if _, _, ok := pub.Lookup("missing"); ok {
		t.Fatal("found a missing name")
	}
	if types, err := d.PubTypes(); types != nil || err != nil {
		t.Fatalf("PubTypes() = %v, %v", types, err)
	}
}

func TestMacInfo(t *testing.T) {
	b := mock.NewBuilder(le)
	b.U8(MacroStartFile).ULEB(0).ULEB(1)
	b.U8(MacroDefine).ULEB(1).Str("FOO 1")
	b.U8(MacroUndef).ULEB(5).Str("FOO")
	b.U8(MacroEndFile)
	b.U8(0)
	d := openDwarf(t, mock.Elf64LE(progbits(".debug_macinfo", b.Out())))
	sec, err := d.MacInfo()
	if err != nil {
		t.Fatal(err)
	}
	u, err := sec.Unit(0)
	if err != nil {
		t.Fatal(err)
	}
	want := []MacroEntry{
		{Op: MacroStartFile, File: 1},
		{Op: MacroDefine, Line: 1, Text: "FOO 1"},
		{Op: MacroUndef, Line: 5, Text: "FOO"},
		{Op: MacroEndFile},
	}
	if diff := cmp.Diff(want, u.Entries); diff != "" {
		t.Fatalf("entries (-want +got):\n%s", diff)
	}
	again, _ := sec.Unit(0)
	if again != u {
		t.Fatal("macro unit decoded twice")
	}
}

func TestMacro(t *testing.T) {
	b := mock.NewBuilder(le)
	b.U16(5).U8(macroLineOffset | macroOperandsTable).U32(0)
	b.U8(1).U8(0xe0).ULEB(2).U8(uint8(FormData1)).U8(uint8(FormString))
	b.U8(MacroStartFile).ULEB(0).ULEB(1)
	b.U8(MacroDefineStrp).ULEB(2).U32(5)
	b.U8(MacroDefineStrx).ULEB(3).ULEB(7)
	b.U8(MacroImport).U32(0x40)
	b.U8(0xe0).U8(9).Str("vendor")
	b.U8(MacroEndFile)
	b.U8(0)
	d := openDwarf(t, mock.Elf64LE(
		progbits(".debug_str", []byte("\x00int\x00BAR 2\x00")),
		progbits(".debug_macro", b.Out()),
	))
	sec, err := d.Macro()
	if err != nil {
		t.Fatal(err)
	}
	u, err := sec.Unit(0)
	if err != nil {
		t.Fatal(err)
	}
	if u.Version != 5 || !u.HasLineOffset || u.LineOffset != 0 {
		t.Fatalf("header %+v", u)
	}
	want := []MacroEntry{
		{Op: MacroStartFile, File: 1},
		{Op: MacroDefineStrp, Line: 2, Text: "BAR 2", Offset: 5},
		{Op: MacroDefineStrx, Line: 3, Offset: 7},
		{Op: MacroImport, Offset: 0x40},
		{Op: 0xe0, Operands: []Value{
			{Form: FormData1, Kind: KindInt, Int: 9},
			{Form: FormString, Kind: KindString, Str: "vendor"},
		}},
		{Op: MacroEndFile},
	}
	if diff := cmp.Diff(want, u.Entries); diff != "" {
		t.Fatalf("entries (-want +got):\n%s", diff)
	}
}

func TestMacroErrors(t *testing.T) {
	d := openDwarf(t, mock.Elf64LE(
		progbits(".debug_macinfo", []byte{0x42, 0}),
		progbits(".debug_macro", []byte{5, 0, 0, 0xe1, 0}),
	))
	macinfo, _ := d.MacInfo()
	if _, err := macinfo.Unit(0); !errors.Is(err, models.ErrDecode) {
		t.Fatalf("unknown macinfo opcode: %v", err)
	}
	macro, _ := d.Macro()
	if _, err := macro.Unit(0); !errors.Is(err, models.ErrDecode) {
		t.Fatalf("opcode without operands: %v", err)
	}
	if _, err := macro.Unit(0x100); !errors.Is(err, models.ErrDecode) {
		t.Fatalf("offset past the section: %v", err)
	}
}
