package loader

import (
	"debug/elf"

	"github.com/pkg/errors"

	"github.com/lunixbochs/objdwarf/go/models"
	"github.com/lunixbochs/objdwarf/go/stream"
)

var machineMap = map[elf.Machine]string{
	elf.EM_386:     "x86",
	elf.EM_X86_64:  "x86_64",
	elf.EM_ARM:     "arm",
	elf.EM_AARCH64: "arm64",
	elf.EM_MIPS:    "mips",
	elf.EM_PPC:     "ppc",
	elf.EM_PPC64:   "ppc64",
	elf.EM_RISCV:   "riscv",
	elf.EM_S390:    "s390",
	elf.EM_SPARCV9: "sparc64",
}

// elfNoStrtab names sections of a file without a section name table.
const elfNoStrtab = "<no-strtab>"

type elfIdent struct {
	Magic      [4]byte
	Class      uint8
	Data       uint8
	Version    uint8
	OSABI      uint8
	ABIVersion uint8
	Pad        [7]byte
}

type elfHeader32 struct {
	Type, Machine                uint16
	Version, Entry, Phoff, Shoff uint32
	Flags                        uint32
	Ehsize, Phentsize, Phnum     uint16
	Shentsize, Shnum, Shstrndx   uint16
}

type elfHeader64 struct {
	Type, Machine              uint16
	Version                    uint32
	Entry, Phoff, Shoff        uint64
	Flags                      uint32
	Ehsize, Phentsize, Phnum   uint16
	Shentsize, Shnum, Shstrndx uint16
}

type elfSection32 struct {
	Name, Type, Flags, Addr, Offset, Size uint32
	Link, Info, Addralign, Entsize        uint32
}

type elfSection64 struct {
	Name, Type         uint32
	Flags, Addr        uint64
	Offset, Size       uint64
	Link, Info         uint32
	Addralign, Entsize uint64
}

type elfProg32 struct {
	Type, Off, Vaddr, Paddr, Filesz, Memsz, Flags, Align uint32
}

type elfProg64 struct {
	Type, Flags                             uint32
	Off, Vaddr, Paddr, Filesz, Memsz, Align uint64
}

// elfHeader is the class-independent view of the ELF file header.
type elfHeader struct {
	typ, machine        uint16
	entry               uint64
	phoff, shoff        int64
	phnum, shnum        int
	shentsize, shstrndx int
}

func (r *Reader) parseELF() error {
	c := r.cur
	var ident elfIdent
	if err := c.Unpack(&ident); err != nil {
		return err
	}
	switch elf.Class(ident.Class) {
	case elf.ELFCLASS32:
		if err := c.SetClass(stream.Class32); err != nil {
			return err
		}
	case elf.ELFCLASS64:
		if err := c.SetClass(stream.Class64); err != nil {
			return err
		}
	default:
		return models.NewFormatError(models.FormatELF, "unknown class %d", ident.Class)
	}
	switch elf.Data(ident.Data) {
	case elf.ELFDATA2LSB:
		c.SetOrder(stream.LittleEndian)
	case elf.ELFDATA2MSB:
		c.SetOrder(stream.BigEndian)
	default:
		return models.NewFormatError(models.FormatELF, "unknown data encoding %d", ident.Data)
	}

	h, err := r.readELFHeader()
	if err != nil {
		return err
	}
	r.bits = int(c.Class())
	r.machine = uint32(h.machine)
	r.fileType = uint32(h.typ)
	r.entry = h.entry
	if name, ok := machineMap[elf.Machine(h.machine)]; ok {
		r.arch = name
	} else {
		r.arch = elf.Machine(h.machine).String()
	}

	if err := r.readELFProgs(h); err != nil {
		return err
	}
	return r.readELFSections(h)
}

func (r *Reader) readELFHeader() (*elfHeader, error) {
	c := r.cur
	if c.Class() == stream.Class64 {
		var h elfHeader64
		if err := c.Unpack(&h); err != nil {
			return nil, err
		}
		return &elfHeader{h.Type, h.Machine, h.Entry, int64(h.Phoff), int64(h.Shoff),
			int(h.Phnum), int(h.Shnum), int(h.Shentsize), int(h.Shstrndx)}, nil
	}
	var h elfHeader32
	if err := c.Unpack(&h); err != nil {
		return nil, err
	}
	return &elfHeader{h.Type, h.Machine, uint64(h.Entry), int64(h.Phoff), int64(h.Shoff),
		int(h.Phnum), int(h.Shnum), int(h.Shentsize), int(h.Shstrndx)}, nil
}

func (r *Reader) readELFProgs(h *elfHeader) error {
	if h.phoff == 0 || h.phnum == 0 {
		return nil
	}
	c := r.cur
	if err := c.Seek(h.phoff); err != nil {
		return errors.Wrap(err, "program headers")
	}
	for i := 0; i < h.phnum; i++ {
		var p models.ProgHeader
		if c.Class() == stream.Class64 {
			var ph elfProg64
			if err := c.Unpack(&ph); err != nil {
				return err
			}
			p = models.ProgHeader{Type: ph.Type, Flags: ph.Flags, Offset: int64(ph.Off),
				Vaddr: ph.Vaddr, Filesz: ph.Filesz, Memsz: ph.Memsz}
		} else {
			var ph elfProg32
			if err := c.Unpack(&ph); err != nil {
				return err
			}
			p = models.ProgHeader{Type: ph.Type, Flags: ph.Flags, Offset: int64(ph.Off),
				Vaddr: uint64(ph.Vaddr), Filesz: uint64(ph.Filesz), Memsz: uint64(ph.Memsz)}
		}
		r.progs = append(r.progs, p)
	}
	return nil
}

func (r *Reader) readELFSection() (models.SectionHeader, uint32, error) {
	c := r.cur
	if c.Class() == stream.Class64 {
		var sh elfSection64
		if err := c.Unpack(&sh); err != nil {
			return models.SectionHeader{}, 0, err
		}
		return models.SectionHeader{Offset: int64(sh.Offset), Size: int64(sh.Size), Addr: sh.Addr,
			Type: sh.Type, Flags: sh.Flags, Link: sh.Link, Info: sh.Info, EntSize: sh.Entsize}, sh.Name, nil
	}
	var sh elfSection32
	if err := c.Unpack(&sh); err != nil {
		return models.SectionHeader{}, 0, err
	}
	return models.SectionHeader{Offset: int64(sh.Offset), Size: int64(sh.Size), Addr: uint64(sh.Addr),
		Type: sh.Type, Flags: uint64(sh.Flags), Link: sh.Link, Info: sh.Info, EntSize: uint64(sh.Entsize)}, sh.Name, nil
}

func (r *Reader) readELFSections(h *elfHeader) error {
	if h.shoff == 0 {
		return nil
	}
	c := r.cur
	if err := c.Seek(h.shoff); err != nil {
		return errors.Wrap(err, "section headers")
	}
	shnum, shstrndx := h.shnum, h.shstrndx
	var headers []models.SectionHeader
	var names []uint32
	for i := 0; i < shnum || i == 0; i++ {
		if err := c.Seek(h.shoff + int64(i*h.shentsize)); err != nil {
			return errors.Wrapf(err, "section header %d", i)
		}
		sh, name, err := r.readELFSection()
		if err != nil {
			return err
		}
		if i == 0 {
			// extended numbering keeps the real counts in section 0
			if shnum == 0 {
				shnum = int(sh.Size)
			}
			if shstrndx == int(elf.SHN_XINDEX) {
				shstrndx = int(sh.Link)
			}
			if shnum == 0 {
				return nil
			}
		}
		headers = append(headers, sh)
		names = append(names, name)
	}

	var strtab *models.SectionHeader
	if shstrndx > 0 && shstrndx < len(headers) {
		strtab = &headers[shstrndx]
	}
	for i := range headers {
		headers[i].Name = r.elfSectionName(strtab, names[i])
		r.addSection(headers[i])
	}
	return nil
}

// elfSectionName resolves a name through the section name table, or returns
// a placeholder when the file has none.
func (r *Reader) elfSectionName(strtab *models.SectionHeader, off uint32) string {
	if strtab == nil || int64(off) >= strtab.Size {
		return elfNoStrtab
	}
	name, err := r.stringAt(strtab.Offset + int64(off))
	if err != nil {
		r.log.Warn().Err(err).Uint32("offset", off).Msg("bad section name")
		return elfNoStrtab
	}
	return name
}

// stringAt reads a NUL-terminated string without moving the cursor.
func (r *Reader) stringAt(off int64) (string, error) {
	mark := r.cur.Save()
	defer r.cur.Restore(mark)
	if err := r.cur.Seek(off); err != nil {
		return "", err
	}
	return r.cur.CString()
}
