package libs

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/lunixbochs/objdwarf/go/models/mock"
)

func sharedObject() []byte {
	strs := mock.NewStringTable("\x00")
	dyn := mock.ElfDyn(true, binary.LittleEndian,
		uint64(elf.DT_NEEDED), uint64(strs.Add("libodtest.so.6")),
		uint64(elf.DT_NEEDED), uint64(strs.Add("libodapp.so")),
		uint64(elf.DT_NEEDED), uint64(strs.Add("libodmissing.so.1")),
		uint64(elf.DT_RUNPATH), uint64(strs.Add("/opt/lib:$ORIGIN/lib")),
	)
	f := &mock.ElfFile{
		Class64: true,
		Type:    elf.ET_DYN,
		Sections: []mock.ElfSection{
			{Name: ".dynstr", Type: elf.SHT_STRTAB, Data: strs.Bytes()},
			{Name: ".dynamic", Type: elf.SHT_DYNAMIC, Link: 1, EntSize: 16, Data: dyn},
		},
	}
	return f.Bytes()
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLibsResolve(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "opt/lib/libodtest.so.6.1"))
	if err := os.Symlink("libodtest.so.6.1", filepath.Join(root, "opt/lib/libodtest.so.6")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	path := mock.TempFile(t, "libfoo.so", sharedObject())
	touch(t, filepath.Join(filepath.Dir(path), "lib/libodapp.so"))

	c := New()
	var out, errOut bytes.Buffer
	c.Stdout, c.Stderr = &out, &errOut
	if status := c.Run([]string{"libs", "-r", "--prefix", root, "--yaml", path}); status != 0 {
		t.Fatalf("status %d: %s", status, errOut.String())
	}
	var got report
	if err := yaml.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := report{
		File: path,
		Deps: []dep{
			{Name: "libodtest.so.6", Path: filepath.Join(root, "opt/lib/libodtest.so.6.1")},
			{Name: "libodapp.so", Path: filepath.Join(filepath.Dir(path), "lib/libodapp.so")},
			{Name: "libodmissing.so.1"},
		},
		Paths: []string{"/opt/lib", "$ORIGIN/lib"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("report (-want +got):\n%s", diff)
	}
	if !bytes.Contains(errOut.Bytes(), []byte("libodmissing.so.1")) {
		t.Fatalf("missing library not logged:\n%s", errOut.String())
	}
}

func TestLibsText(t *testing.T) {
	path := mock.TempFile(t, "libfoo.so", sharedObject())
	c := New()
	var out, errOut bytes.Buffer
	c.Stdout, c.Stderr = &out, &errOut
	if status := c.Run([]string{"libs", path}); status != 0 {
		t.Fatalf("status %d: %s", status, errOut.String())
	}
	for _, line := range []string{"  libodtest.so.6\n", "  search $ORIGIN/lib\n"} {
		if !bytes.Contains(out.Bytes(), []byte(line)) {
			t.Fatalf("no %q in:\n%s", line, out.String())
		}
	}
}
