package loader

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"strings"

	"github.com/pkg/errors"

	"github.com/lunixbochs/objdwarf/go/models"
	"github.com/lunixbochs/objdwarf/go/stream"
)

const (
	machoLoadCmdReqDyld  = 0x80000000
	machoLoadCmdLoadWeak = 0x18 | machoLoadCmdReqDyld
	machoLoadCmdReexport = 0x1f | machoLoadCmdReqDyld
	machoLoadCmdLazyLoad = 0x20
	machoLoadCmdUpward   = 0x23 | machoLoadCmdReqDyld
	machoLoadCmdMain     = 0x28 | machoLoadCmdReqDyld
	machoCpuArch64       = 0x01000000
	machoDwarfSegment    = "__DWARF"
	machoNlist32Size     = 12
	machoNlist64Size     = 16
)

var machoCpuMap = map[macho.Cpu]string{
	macho.Cpu386:   "x86",
	macho.CpuAmd64: "x86_64",
	macho.CpuArm:   "arm",
	macho.CpuArm64: "arm64",
	macho.CpuPpc:   "ppc",
	macho.CpuPpc64: "ppc64",
}

type machoHeader struct {
	Magic  uint32
	Cpu    uint32
	SubCpu uint32
	Type   uint32
	Ncmd   uint32
	Cmdsz  uint32
	Flags  uint32
}

type fatArch struct {
	Cpu, SubCpu, Offset, Size, Align uint32
}

type fatArch64 struct {
	Cpu, SubCpu     uint32
	Offset, Size    uint64
	Align, Reserved uint32
}

type machoSegment32 struct {
	Name                        [16]byte
	Addr, Memsz, Offset, Filesz uint32
	Maxprot, Prot, Nsect, Flag  uint32
}

type machoSegment64 struct {
	Name                        [16]byte
	Addr, Memsz, Offset, Filesz uint64
	Maxprot, Prot, Nsect, Flag  uint32
}

type machoSection32 struct {
	Name, Seg                     [16]byte
	Addr, Size                    uint32
	Offset, Align, Reloff, Nreloc uint32
	Flags, Reserve1, Reserve2     uint32
}

type machoSection64 struct {
	Name, Seg                           [16]byte
	Addr, Size                          uint64
	Offset, Align, Reloff, Nreloc       uint32
	Flags, Reserve1, Reserve2, Reserve3 uint32
}

type machoSymtab struct {
	Symoff, Nsyms, Stroff, Strsize uint32
}

type fatSlice struct {
	cpu          macho.Cpu
	offset, size int64
}

// parseMachO reads a thin Mach-O file, or the chosen slice of a fat one.
func (r *Reader) parseMachO() error {
	c := r.cur
	magic, err := c.Bytes(4)
	if err != nil {
		return err
	}
	if hasMagic(magic, fatMagic, fat64Magic) {
		if err := r.enterFatSlice(bytes.Equal(magic, fat64Magic)); err != nil {
			return err
		}
		if err := c.Seek(r.base); err != nil {
			return err
		}
		if magic, err = c.Bytes(4); err != nil {
			return err
		}
	}
	switch {
	case bytes.Equal(magic, machoMagics[0]):
		c.SetOrder(stream.BigEndian)
		c.SetClass(stream.Class32)
	case bytes.Equal(magic, machoMagics[1]):
		c.SetOrder(stream.BigEndian)
		c.SetClass(stream.Class64)
	case bytes.Equal(magic, machoMagics[2]):
		c.SetOrder(stream.LittleEndian)
		c.SetClass(stream.Class32)
	case bytes.Equal(magic, machoMagics[3]):
		c.SetOrder(stream.LittleEndian)
		c.SetClass(stream.Class64)
	default:
		return models.NewFormatError(models.FormatMachO, "bad magic %x at 0x%x", magic, r.base)
	}
	if err := c.Seek(r.base); err != nil {
		return err
	}
	var h machoHeader
	if err := c.Unpack(&h); err != nil {
		return err
	}
	if c.Class() == stream.Class64 {
		if err := c.Skip(4); err != nil {
			return errors.Wrap(err, "mach-o header")
		}
	}
	r.bits = int(c.Class())
	r.machine = h.Cpu
	r.fileType = h.Type
	if name, ok := machoCpuMap[macho.Cpu(h.Cpu)]; ok {
		r.arch = name
	} else {
		r.arch = macho.Cpu(h.Cpu).String()
	}
	r.libs = &models.SharedLibs{}
	if err := r.readLoadCommands(&h); err != nil {
		return err
	}
	return r.findExternalDebug()
}

// enterFatSlice picks the first 64-bit slice of a fat binary, or the first
// slice when none is 64-bit, and makes it the parse base.
func (r *Reader) enterFatSlice(wide bool) error {
	c := r.cur
	c.SetOrder(stream.BigEndian)
	n, err := c.U32()
	if err != nil {
		return err
	}
	var slices []fatSlice
	for i := uint32(0); i < n; i++ {
		if wide {
			var a fatArch64
			if err := c.Unpack(&a); err != nil {
				return err
			}
			slices = append(slices, fatSlice{macho.Cpu(a.Cpu), int64(a.Offset), int64(a.Size)})
		} else {
			var a fatArch
			if err := c.Unpack(&a); err != nil {
				return err
			}
			slices = append(slices, fatSlice{macho.Cpu(a.Cpu), int64(a.Offset), int64(a.Size)})
		}
	}
	if len(slices) == 0 {
		return models.NewFormatError(models.FormatFat, "no architectures")
	}
	chosen := slices[0]
	for _, s := range slices {
		if s.cpu&machoCpuArch64 != 0 {
			chosen = s
			break
		}
	}
	if chosen.offset <= 0 || chosen.offset+chosen.size > c.Len() {
		return models.NewFormatError(models.FormatFat, "slice for %s out of range", chosen.cpu)
	}
	r.base = chosen.offset
	r.log.Debug().Stringer("cpu", chosen.cpu).Int64("offset", chosen.offset).Int("slices", len(slices)).Msg("selected fat slice")
	return nil
}

func (r *Reader) readLoadCommands(h *machoHeader) error {
	c := r.cur
	var textAddr, mainOff uint64
	var hasMain bool
	pos := c.Position()
	end := pos + int64(h.Cmdsz)
	for i := 0; i < int(h.Ncmd); i++ {
		if err := c.Seek(pos); err != nil {
			return errors.Wrapf(err, "load command %d", i)
		}
		cmd, err := c.U32()
		if err != nil {
			return err
		}
		size, err := c.U32()
		if err != nil {
			return err
		}
		if size < 8 || pos+int64(size) > end {
			return models.NewFormatError(models.FormatMachO, "load command %d has bad size %d", i, size)
		}
		switch macho.LoadCmd(cmd) {
		case macho.LoadCmdSegment, macho.LoadCmdSegment64:
			addr, err := r.readSegment(macho.LoadCmd(cmd))
			if err != nil {
				return err
			}
			if addr.name == "__TEXT" {
				textAddr = addr.vmaddr
			}
		case macho.LoadCmdSymtab:
			var st machoSymtab
			if err := c.Unpack(&st); err != nil {
				return err
			}
			r.addSymtab(&st)
		case macho.LoadCmdDylib, machoLoadCmdLoadWeak, machoLoadCmdReexport, machoLoadCmdLazyLoad, machoLoadCmdUpward:
			if name, ok := r.loadCmdString(pos, size); ok {
				r.libs.AddDep(name)
			}
		case macho.LoadCmdRpath:
			if path, ok := r.loadCmdString(pos, size); ok {
				r.libs.AddPath(path)
			}
		case machoLoadCmdMain:
			if mainOff, err = c.U64(); err != nil {
				return err
			}
			hasMain = true
		case macho.LoadCmdUnixThread:
			if err := r.readUnixThread(pos, size); err != nil {
				return errors.Wrapf(err, "load command %d", i)
			}
		}
		pos += int64(size)
	}
	if hasMain {
		r.entry = textAddr + mainOff
	}
	return nil
}

type segmentInfo struct {
	name   string
	vmaddr uint64
}

// readSegment records the sections of one segment. __DWARF sections are
// renamed from __debug_* to .debug_* to match ELF naming.
func (r *Reader) readSegment(cmd macho.LoadCmd) (segmentInfo, error) {
	c := r.cur
	var seg segmentInfo
	var nsect uint32
	if cmd == macho.LoadCmdSegment64 {
		var s machoSegment64
		if err := c.Unpack(&s); err != nil {
			return seg, err
		}
		seg = segmentInfo{stream.TrimNul(s.Name[:]), s.Addr}
		nsect = s.Nsect
	} else {
		var s machoSegment32
		if err := c.Unpack(&s); err != nil {
			return seg, err
		}
		seg = segmentInfo{stream.TrimNul(s.Name[:]), uint64(s.Addr)}
		nsect = s.Nsect
	}
	for i := uint32(0); i < nsect; i++ {
		var h models.SectionHeader
		var segName string
		if cmd == macho.LoadCmdSegment64 {
			var s machoSection64
			if err := c.Unpack(&s); err != nil {
				return seg, err
			}
			h = models.SectionHeader{Name: stream.TrimNul(s.Name[:]), Offset: r.base + int64(s.Offset),
				Size: int64(s.Size), Addr: s.Addr, Flags: uint64(s.Flags), Info: s.Nreloc}
			segName = stream.TrimNul(s.Seg[:])
		} else {
			var s machoSection32
			if err := c.Unpack(&s); err != nil {
				return seg, err
			}
			h = models.SectionHeader{Name: stream.TrimNul(s.Name[:]), Offset: r.base + int64(s.Offset),
				Size: int64(s.Size), Addr: uint64(s.Addr), Flags: uint64(s.Flags), Info: s.Nreloc}
			segName = stream.TrimNul(s.Seg[:])
		}
		if segName == machoDwarfSegment && strings.HasPrefix(h.Name, "__debug") {
			h.Name = "." + strings.TrimPrefix(h.Name, "__")
		}
		r.addSection(h)
	}
	return seg, nil
}

// addSymtab adds synthetic .symtab and .strtab sections for LC_SYMTAB.
func (r *Reader) addSymtab(st *machoSymtab) {
	entSize := int64(machoNlist32Size)
	if r.Class() == stream.Class64 {
		entSize = machoNlist64Size
	}
	strIdx := r.addSection(models.SectionHeader{
		Name:   ".strtab",
		Offset: r.base + int64(st.Stroff),
		Size:   int64(st.Strsize),
		Type:   uint32(elf.SHT_STRTAB),
	})
	r.addSection(models.SectionHeader{
		Name:    ".symtab",
		Offset:  r.base + int64(st.Symoff),
		Size:    int64(st.Nsyms) * entSize,
		Type:    uint32(elf.SHT_SYMTAB),
		Link:    uint32(strIdx),
		Info:    st.Nsyms,
		EntSize: uint64(entSize),
	})
}

// loadCmdString reads the lc_str stored at offset 8 of a load command.
func (r *Reader) loadCmdString(pos int64, size uint32) (string, bool) {
	if err := r.cur.Seek(pos + 8); err != nil {
		return "", false
	}
	off, err := r.cur.U32()
	if err != nil || off >= size {
		return "", false
	}
	s, err := r.stringAt(pos + int64(off))
	return s, err == nil && s != ""
}

// readUnixThread pulls the initial instruction pointer from an x86 thread
// state.
func (r *Reader) readUnixThread(pos int64, size uint32) error {
	var ip int64
	var wide bool
	switch macho.Cpu(r.machine) {
	case macho.CpuAmd64:
		ip, wide = 144, true
	case macho.Cpu386:
		ip = 56
	default:
		return nil
	}
	if ip+8 > int64(size) {
		return nil
	}
	if err := r.cur.Seek(pos + ip); err != nil {
		return errors.Wrap(err, "thread state")
	}
	if wide {
		entry, err := r.cur.U64()
		if err != nil {
			return errors.Wrap(err, "thread state")
		}
		r.entry = entry
		return nil
	}
	v, err := r.cur.U32()
	if err != nil {
		return errors.Wrap(err, "thread state")
	}
	r.entry = uint64(v)
	return nil
}

// findExternalDebug handles binaries whose debug information stayed in the
// object files the linker consumed. Their paths survive in the symbol string
// table as N_OSO stabs, which a name-based scan finds most of the time.
func (r *Reader) findExternalDebug() error {
	for _, h := range r.headers {
		if strings.HasPrefix(h.Name, ".debug_") {
			return nil
		}
	}
	i, ok := r.index[".strtab"]
	if !ok {
		return models.NewFormatError(r.format, "no debug information and no symbol string table")
	}
	h := &r.headers[i]
	seen := make(map[string]bool)
	for _, s := range r.stringsIn(h.Offset, h.Offset+h.Size) {
		if IsObjectFileName(s) && !seen[s] {
			seen[s] = true
			r.objects = append(r.objects, s)
		}
	}
	r.log.Debug().Int("objects", len(r.objects)).Msg("no embedded debug information")
	return nil
}

// IsObjectFileName matches "dir/file.o" and "lib.a(member.o)" references.
func IsObjectFileName(s string) bool {
	if len(s) > 2 && strings.HasSuffix(s, ".o") {
		return true
	}
	if i := strings.Index(s, ".a("); i > 0 && strings.HasSuffix(s, ")") && len(s) > i+4 {
		return true
	}
	return false
}
