package loader

import (
	"debug/elf"

	"github.com/pkg/errors"

	"github.com/lunixbochs/objdwarf/go/models"
	"github.com/lunixbochs/objdwarf/go/stream"
)

// Relocation is one ELF REL or RELA entry.
type Relocation struct {
	Offset    uint64
	Sym       uint32
	Type      uint32
	Addend    int64
	HasAddend bool
}

// RelocationTable holds the relocations that apply to the section named by
// its header Info field, such as .rela.debug_info for .debug_info in a
// relocatable object.
type RelocationTable struct {
	r      *Reader
	hdr    models.SectionHeader
	rels   []Relocation
	byOff  map[uint64]int
	loaded bool
}

// NewRelocationTable is the Factory for SHT_REL and SHT_RELA sections.
func NewRelocationTable(r *Reader, hdr *models.SectionHeader) (models.Section, error) {
	if r.format != models.FormatELF {
		return nil, models.NewDecodeError(hdr.Name, hdr.Offset, "relocations are only decoded for ELF")
	}
	return &RelocationTable{r: r, hdr: *hdr}, nil
}

func (t *RelocationTable) Kind() models.SectionKind      { return models.KindRelocations }
func (t *RelocationTable) Header() *models.SectionHeader { return &t.hdr }

func (t *RelocationTable) Relocations() ([]Relocation, error) {
	if !t.loaded {
		if err := t.load(); err != nil {
			return nil, err
		}
	}
	return t.rels, nil
}

// Lookup returns the relocation patching offset off of the target section.
func (t *RelocationTable) Lookup(off uint64) (Relocation, bool) {
	if _, err := t.Relocations(); err != nil {
		return Relocation{}, false
	}
	i, ok := t.byOff[off]
	if !ok {
		return Relocation{}, false
	}
	return t.rels[i], true
}

// Symbols returns the symbol table the relocations refer to.
func (t *RelocationTable) Symbols() (*SymbolTable, error) {
	sec, err := t.r.SectionAt(int(t.hdr.Link))
	if err != nil {
		return nil, err
	}
	syms, ok := sec.(*SymbolTable)
	if !ok {
		return nil, models.NewDecodeError(t.hdr.Name, t.hdr.Offset, "link %d is not a symbol table", t.hdr.Link)
	}
	return syms, nil
}

// Apply returns the relocated value of a field at off holding v: the symbol
// value plus the explicit addend for RELA, or plus v for REL. Fields without
// a relocation are returned unchanged.
func (t *RelocationTable) Apply(off, v uint64) (uint64, error) {
	rel, ok := t.Lookup(off)
	if !ok {
		return v, nil
	}
	syms, err := t.Symbols()
	if err != nil {
		return v, err
	}
	sym, ok := syms.At(int(rel.Sym))
	if !ok {
		return v, models.NewDecodeError(t.hdr.Name, int64(off), "relocation against missing symbol %d", rel.Sym)
	}
	if rel.HasAddend {
		return sym.Value + uint64(rel.Addend), nil
	}
	return sym.Value + v, nil
}

func (t *RelocationTable) load() error {
	r := t.r
	mark := r.cur.Save()
	defer r.cur.Restore(mark)

	rela := elf.SectionType(t.hdr.Type) == elf.SHT_RELA
	wide := r.Class() == stream.Class64
	entSize := int64(r.AddrSize() * 2)
	if rela {
		entSize += int64(r.AddrSize())
	}
	if err := r.cur.Seek(t.hdr.Offset); err != nil {
		return errors.Wrapf(err, "section %q", t.hdr.Name)
	}
	count := t.hdr.Size / entSize
	t.rels = make([]Relocation, 0, count)
	t.byOff = make(map[uint64]int, count)
	for i := int64(0); i < count; i++ {
		off, err := r.cur.Read3264()
		if err != nil {
			return err
		}
		info, err := r.cur.Read3264()
		if err != nil {
			return err
		}
		rel := Relocation{Offset: off, HasAddend: rela}
		if wide {
			rel.Sym, rel.Type = uint32(info>>32), uint32(info)
		} else {
			rel.Sym, rel.Type = uint32(info>>8), uint32(info&0xff)
		}
		if rela {
			a, err := r.cur.Read3264()
			if err != nil {
				return err
			}
			if wide {
				rel.Addend = int64(a)
			} else {
				rel.Addend = int64(int32(a))
			}
		}
		if _, ok := t.byOff[off]; !ok {
			t.byOff[off] = len(t.rels)
		}
		t.rels = append(t.rels, rel)
	}
	t.loaded = true
	return nil
}
