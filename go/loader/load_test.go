package loader

import (
	"bytes"
	"debug/elf"
	"testing"

	"github.com/pkg/errors"

	"github.com/lunixbochs/objdwarf/go/mmap"
	"github.com/lunixbochs/objdwarf/go/models"
	"github.com/lunixbochs/objdwarf/go/models/mock"
)

func openBytes(t *testing.T, name string, data []byte, opts ...Option) *Reader {
	t.Helper()
	r, err := Open(mock.TempFile(t, name, data), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSniff(t *testing.T) {
	thin := (&mock.MachoFile{Is64: true, Strings: []string{}}).Bytes()
	tests := []struct {
		name string
		data []byte
		want models.Format
	}{
		{"elf", mock.Elf64LE(), models.FormatELF},
		{"pe", (&mock.PEFile{}).Bytes(), models.FormatPE},
		{"coff", (&mock.CoffFile{}).Bytes(), models.FormatCOFF},
		{"import", mock.ImportStub(0x8664, "f", "a.dll"), models.FormatImport},
		{"macho", thin, models.FormatMachO},
		{"fat", mock.Fat(mock.FatArch{Cpu: 0x01000007, Image: thin}), models.FormatFat},
		{"archive", mock.GNUArchive(), models.FormatArchive},
	}
	for _, test := range tests {
		src := mmap.NewReaderAt(bytes.NewReader(test.data), int64(len(test.data)))
		got, err := Sniff(src)
		if err != nil {
			t.Fatalf("%s: %v", test.name, err)
		}
		if got != test.want {
			t.Fatalf("%s: sniffed %s, want %s", test.name, got, test.want)
		}
	}
}

func TestUnknownMagic(t *testing.T) {
	path := mock.TempFile(t, "junk", []byte("#!/bin/sh\necho hi\n"))
	_, err := Open(path)
	if !errors.Is(err, models.ErrWrongFormat) {
		t.Fatalf("expected wrong format error, got %v", err)
	}
	// Java class files share the fat magic
	class := []byte{0xca, 0xfe, 0xba, 0xbe, 0x00, 0x00, 0x00, 0x34, 0, 0}
	if _, err := Open(mock.TempFile(t, "A.class", class)); !errors.Is(err, models.ErrWrongFormat) {
		t.Fatalf("class file: expected wrong format error, got %v", err)
	}
}

func TestNewClosesSourceOnError(t *testing.T) {
	data := []byte("#!/bin/sh\necho hi\n")
	src := mmap.NewReaderAt(bytes.NewReader(data), int64(len(data)))
	if _, err := New(src); !errors.Is(err, models.ErrWrongFormat) {
		t.Fatalf("expected wrong format error, got %v", err)
	}
	if err := src.Seek(0); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Read(make([]byte, 4)); err == nil {
		t.Fatal("source still readable after a failed New")
	}
}

type rawSection struct {
	hdr models.SectionHeader
}

func (s *rawSection) Kind() models.SectionKind      { return models.KindOther }
func (s *rawSection) Header() *models.SectionHeader { return &s.hdr }

func TestSectionLazyAndIdempotent(t *testing.T) {
	data := mock.Elf64LE(
		mock.ElfSection{Name: ".text", Type: elf.SHT_PROGBITS, Data: []byte{0xc3}},
		mock.ElfSection{Name: ".debug_str", Type: elf.SHT_PROGBITS, Data: []byte("\x00int\x00")},
	)
	calls := 0
	factory := func(r *Reader, h *models.SectionHeader) (models.Section, error) {
		calls++
		return &rawSection{*h}, nil
	}
	r := openBytes(t, "lazy.o", data, WithFactories(map[string]Factory{".debug_str": factory}))
	if calls != 0 {
		t.Fatalf("factory ran %d times during open", calls)
	}
	a, err := r.Section(".debug_str")
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Section(".debug_str")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("second lookup returned a different decoder")
	}
	if calls != 1 {
		t.Fatalf("factory ran %d times, want 1", calls)
	}
	if a.Header().Size != 5 {
		t.Fatalf("decoder header size %d", a.Header().Size)
	}
	if sec, err := r.Section(".text"); sec != nil || err != nil {
		t.Fatalf("section without decoder: %v, %v", sec, err)
	}
	if sec, err := r.Section(".debug_nope"); sec != nil || err != nil {
		t.Fatalf("missing section: %v, %v", sec, err)
	}
}

func TestSectionResolving(t *testing.T) {
	data := mock.Elf64LE(mock.ElfSection{Name: ".debug_abbrev", Type: elf.SHT_PROGBITS, Data: []byte{0}})
	var inner error
	factory := func(r *Reader, h *models.SectionHeader) (models.Section, error) {
		_, inner = r.Section(h.Name)
		return &rawSection{*h}, nil
	}
	r := openBytes(t, "reenter.o", data, WithFactories(map[string]Factory{".debug_abbrev": factory}))
	sec, err := r.Section(".debug_abbrev")
	if err != nil || sec == nil {
		t.Fatalf("outer lookup: %v, %v", sec, err)
	}
	if !errors.Is(inner, models.ErrSectionResolving) {
		t.Fatalf("re-entrant lookup returned %v", inner)
	}
}

func TestSectionFactoryFailure(t *testing.T) {
	data := mock.Elf64LE(mock.ElfSection{Name: ".debug_line", Type: elf.SHT_PROGBITS, Data: []byte{0}})
	fail := true
	factory := func(r *Reader, h *models.SectionHeader) (models.Section, error) {
		if fail {
			return nil, models.NewDecodeError(h.Name, 0, "boom")
		}
		return &rawSection{*h}, nil
	}
	r := openBytes(t, "fail.o", data, WithFactories(map[string]Factory{".debug_line": factory}))
	if _, err := r.Section(".debug_line"); !errors.Is(err, models.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	fail = false
	if sec, err := r.Section(".debug_line"); err != nil || sec == nil {
		t.Fatalf("retry after failure: %v, %v", sec, err)
	}
}
