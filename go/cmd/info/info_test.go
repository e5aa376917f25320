package info

import (
	"bytes"
	stddwarf "debug/dwarf"
	"debug/elf"
	"encoding/binary"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/lunixbochs/objdwarf/go/dwarf"
	"github.com/lunixbochs/objdwarf/go/models/mock"
)

func object() []byte {
	le := binary.LittleEndian
	abbrev := mock.DwarfAbbrevs(
		mock.DwarfAbbrev{Code: 1, Tag: stddwarf.TagCompileUnit, Children: true, Attrs: []mock.DwarfAttr{
			{Attr: stddwarf.AttrName, Form: uint16(dwarf.FormString)},
			{Attr: stddwarf.AttrLanguage, Form: uint16(dwarf.FormData1)},
		}},
		mock.DwarfAbbrev{Code: 2, Tag: stddwarf.TagBaseType, Attrs: []mock.DwarfAttr{
			{Attr: stddwarf.AttrName, Form: uint16(dwarf.FormString)},
		}},
	)
	unit := &mock.DwarfUnit{Version: 4, AddrSize: 8}
	unit.Entries = mock.NewBuilder(le).ULEB(1).Str("a.c").U8(0x0c).ULEB(2).Str("int").U8(0).Out()
	return mock.Elf64LE(
		mock.ElfSection{Name: ".debug_abbrev", Type: elf.SHT_PROGBITS, Data: abbrev},
		mock.ElfSection{Name: ".debug_info", Type: elf.SHT_PROGBITS, Data: unit.Bytes(le)},
	)
}

func run(t *testing.T, args ...string) []unit {
	t.Helper()
	c := New()
	var out, errOut bytes.Buffer
	c.Stdout, c.Stderr = &out, &errOut
	if status := c.Run(append([]string{"info", "--yaml"}, args...)); status != 0 {
		t.Fatalf("status %d: %s", status, errOut.String())
	}
	var units []unit
	if err := yaml.Unmarshal(out.Bytes(), &units); err != nil {
		t.Fatal(err)
	}
	return units
}

func TestInfoEntries(t *testing.T) {
	path := mock.TempFile(t, "a.o", object())
	units := run(t, path)
	if len(units) != 1 || units[0].Version != 4 || len(units[0].Entries) != 2 {
		t.Fatalf("units %+v", units)
	}
	cu := units[0].Entries[0]
	if cu.Tag != stddwarf.TagCompileUnit.String() || len(cu.Fields) != 2 {
		t.Fatalf("unit entry %+v", cu)
	}
	lang := cu.Fields[1]
	if lang.Attr != stddwarf.AttrLanguage.String() || lang.Form != "DW_FORM_data1" || lang.Value != "C99" {
		t.Fatalf("language %+v", lang)
	}
	if base := units[0].Entries[1]; base.Depth != 1 || base.Fields[0].Value != "int" {
		t.Fatalf("base type %+v", base)
	}
}

func TestInfoDepth(t *testing.T) {
	path := mock.TempFile(t, "a.o", object())
	units := run(t, "--depth", "0", path)
	if len(units) != 1 || len(units[0].Entries) != 1 {
		t.Fatalf("units %+v", units)
	}
}
