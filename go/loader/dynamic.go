package loader

import (
	"debug/elf"
	"strings"

	"github.com/pkg/errors"

	"github.com/lunixbochs/objdwarf/go/models"
)

// dynRange is a file extent holding the dynamic table or its strings.
type dynRange struct {
	off, size int64
}

// readDynamic scans the ELF dynamic table for DT_NEEDED, DT_RPATH and
// DT_RUNPATH entries. The cursor is restored afterwards.
func (r *Reader) readDynamic(libs *models.SharedLibs) error {
	mark := r.cur.Save()
	defer r.cur.Restore(mark)

	dyn, str, ok := r.dynamicRanges()
	if !ok {
		return nil
	}
	var needed, paths []uint64
	var strAddr, strSize uint64
	entSize := int64(r.AddrSize() * 2)
	if err := r.cur.Seek(dyn.off); err != nil {
		return errors.Wrap(err, "dynamic section")
	}
	for n := int64(0); n+entSize <= dyn.size; n += entSize {
		tag, err := r.cur.Read3264()
		if err != nil {
			return err
		}
		val, err := r.cur.Read3264()
		if err != nil {
			return err
		}
		switch elf.DynTag(tag) {
		case elf.DT_NULL:
			n = dyn.size
		case elf.DT_NEEDED:
			needed = append(needed, val)
		case elf.DT_RPATH, elf.DT_RUNPATH:
			paths = append(paths, val)
		case elf.DT_STRTAB:
			strAddr = val
		case elf.DT_STRSZ:
			strSize = val
		}
	}
	if str.size == 0 && strAddr != 0 {
		off, ok := r.vaddrToOffset(strAddr)
		if !ok {
			r.log.Warn().Uint64("addr", strAddr).Msg("DT_STRTAB outside of any loaded segment")
			return nil
		}
		str = dynRange{off, int64(strSize)}
	}
	lookup := func(off uint64) (string, bool) {
		if str.size == 0 || int64(off) >= str.size {
			return "", false
		}
		s, err := r.stringAt(str.off + int64(off))
		if err != nil {
			r.log.Warn().Err(err).Uint64("offset", off).Msg("bad dynamic string")
			return "", false
		}
		return s, true
	}
	for _, off := range needed {
		if s, ok := lookup(off); ok {
			libs.AddDep(s)
		}
	}
	for _, off := range paths {
		if s, ok := lookup(off); ok {
			for _, p := range strings.Split(s, ":") {
				libs.AddPath(p)
			}
		}
	}
	return nil
}

// dynamicRanges prefers the .dynamic section and its linked string table,
// falling back to PT_DYNAMIC for files without section headers.
func (r *Reader) dynamicRanges() (dyn, str dynRange, ok bool) {
	if i, found := r.index[".dynamic"]; found {
		h := &r.headers[i]
		dyn = dynRange{h.Offset, h.Size}
		if link := int(h.Link); link > 0 && link < len(r.headers) {
			str = dynRange{r.headers[link].Offset, r.headers[link].Size}
		}
		return dyn, str, true
	}
	for _, p := range r.progs {
		if elf.ProgType(p.Type) == elf.PT_DYNAMIC {
			return dynRange{p.Offset, int64(p.Filesz)}, dynRange{}, true
		}
	}
	return dyn, str, false
}

func (r *Reader) vaddrToOffset(vaddr uint64) (int64, bool) {
	for _, p := range r.progs {
		if elf.ProgType(p.Type) == elf.PT_LOAD && p.Contains(vaddr) {
			return p.Offset + int64(vaddr-p.Vaddr), true
		}
	}
	return 0, false
}
