package ar

import (
	"bytes"
	"debug/elf"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/lunixbochs/objdwarf/go/models/mock"
)

func TestArchiveMembers(t *testing.T) {
	obj := mock.Elf64LE(mock.ElfSection{Name: ".text", Type: elf.SHT_PROGBITS, Data: []byte{0xc3}})
	data := mock.GNUArchive(
		mock.ArMember{Name: "a.o", Data: obj},
		mock.ArMember{Name: "README", Data: []byte("not an object\n")},
	)
	path := mock.TempFile(t, "libx.a", data)

	c := New()
	var out, errOut bytes.Buffer
	c.Stdout, c.Stderr = &out, &errOut
	if status := c.Run([]string{"ar", "--open", "--yaml", path}); status != 0 {
		t.Fatalf("status %d: %s", status, errOut.String())
	}
	var got []member
	if err := yaml.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("members %+v", got)
	}
	if got[0].Name != "a.o" || got[0].Size != int64(len(obj)) || got[0].Format != "ELF" {
		t.Fatalf("object member %+v", got[0])
	}
	if got[1].Name != "README" || got[1].Format != "" {
		t.Fatalf("text member %+v", got[1])
	}
}
