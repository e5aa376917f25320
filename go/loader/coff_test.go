package loader

import (
	"debug/pe"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/lunixbochs/objdwarf/go/models"
	"github.com/lunixbochs/objdwarf/go/models/mock"
)

func TestCOFFLongNames(t *testing.T) {
	f := &mock.CoffFile{
		Sections: []mock.CoffSection{
			{Name: ".text", Data: []byte{0xc3}},
			{Name: ".debug_info", Data: make([]byte, 12)},
			{Name: ".debug_abbrev", Data: []byte{0}},
		},
	}
	r := openBytes(t, "a.obj", f.Bytes())
	if r.Format() != models.FormatCOFF || r.AddrSize() != 8 || r.Arch() != "x86_64" {
		t.Fatalf("format %s addr %d arch %q", r.Format(), r.AddrSize(), r.Arch())
	}
	var names []string
	for _, h := range r.Headers() {
		names = append(names, h.Name)
	}
	if diff := cmp.Diff([]string{".text", ".debug_info", ".debug_abbrev"}, names); diff != "" {
		t.Fatalf("section names (-want +got):\n%s", diff)
	}
	if i, ok := r.SectionIndex(".debug_info"); !ok || i != 1 {
		t.Fatalf("SectionIndex = %d, %v", i, ok)
	}
	if _, ok := r.SectionIndex("/4"); ok {
		t.Fatal("raw /offset name left in the index")
	}
	h, _ := r.SectionHeader(1)
	if h.Size != 12 {
		t.Fatalf(".debug_info size %d", h.Size)
	}
}

func TestCOFF32(t *testing.T) {
	f := &mock.CoffFile{Machine: pe.IMAGE_FILE_MACHINE_I386, Sections: []mock.CoffSection{{Name: ".data", Data: []byte{1, 2}}}}
	r := openBytes(t, "x86.obj", f.Bytes())
	if r.AddrSize() != 4 || r.Arch() != "x86" {
		t.Fatalf("addr %d arch %q", r.AddrSize(), r.Arch())
	}
}

func TestCOFFImportDescriptors(t *testing.T) {
	f := &mock.CoffFile{
		Sections: []mock.CoffSection{{Name: ".idata$2", Data: make([]byte, 20)}},
		Strings:  []string{"__IMPORT_DESCRIPTOR_KERNEL32", "__NULL_IMPORT_DESCRIPTOR", "\x7fKERNEL32_NULL_THUNK_DATA"},
	}
	r := openBytes(t, "kernel32.obj", f.Bytes())
	libs, err := r.SharedLibraries()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"KERNEL32.dll"}, libs.Deps); diff != "" {
		t.Fatalf("deps (-want +got):\n%s", diff)
	}
}

func TestPEImports(t *testing.T) {
	f := &mock.PEFile{Entry: 0x1000, Imports: []string{"KERNEL32.dll", "USER32.dll"}}
	r := openBytes(t, "app.exe", f.Bytes())
	if r.Format() != models.FormatPE || r.AddrSize() != 8 || r.Entry() != 0x1000 {
		t.Fatalf("format %s addr %d entry 0x%x", r.Format(), r.AddrSize(), r.Entry())
	}
	if r.NumSections() != 2 {
		t.Fatalf("%d sections", r.NumSections())
	}
	libs, err := r.SharedLibraries()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"KERNEL32.dll", "USER32.dll"}, libs.Deps); diff != "" {
		t.Fatalf("deps (-want +got):\n%s", diff)
	}

	f = &mock.PEFile{Machine: pe.IMAGE_FILE_MACHINE_I386, Imports: []string{"msvcrt.dll"}}
	r = openBytes(t, "app32.exe", f.Bytes())
	if r.AddrSize() != 4 || r.Bits() != 32 {
		t.Fatalf("pe32: addr %d bits %d", r.AddrSize(), r.Bits())
	}
}

func TestPEBadSignature(t *testing.T) {
	data := (&mock.PEFile{}).Bytes()
	copy(data[0x40:], "NE\x00\x00")
	_, err := Open(mock.TempFile(t, "bad.exe", data))
	if !errors.Is(err, models.ErrWrongFormat) {
		t.Fatalf("expected wrong format error, got %v", err)
	}
}

func TestImportStub(t *testing.T) {
	data := mock.ImportStub(pe.IMAGE_FILE_MACHINE_AMD64, "CreateFileW", "KERNEL32.dll")
	r := openBytes(t, "stub", data)
	if r.Format() != models.FormatImport || r.NumSections() != 0 || r.AddrSize() != 8 {
		t.Fatalf("format %s sections %d addr %d", r.Format(), r.NumSections(), r.AddrSize())
	}
	libs, _ := r.SharedLibraries()
	if diff := cmp.Diff([]string{"KERNEL32.dll"}, libs.Deps); diff != "" {
		t.Fatalf("deps (-want +got):\n%s", diff)
	}
}
