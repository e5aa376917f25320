package dwarf

import (
	"debug/dwarf"

	"github.com/lunixbochs/objdwarf/go/loader"
	"github.com/lunixbochs/objdwarf/go/models"
)

// Abbrev describes the layout of the entries that use its code.
type Abbrev struct {
	Code     uint64
	Tag      dwarf.Tag
	Children bool
	Attrs    []AttrSpec
}

// AbbrevSet is the abbreviation list of one unit, keyed by code.
type AbbrevSet map[uint64]*Abbrev

// AbbrevTable decodes .debug_abbrev. Sets are parsed on first use and
// cached by offset, since units commonly share them.
type AbbrevTable struct {
	d    *Reader
	hdr  models.SectionHeader
	sets map[uint64]AbbrevSet
}

func (d *Reader) newAbbrevTable(_ *loader.Reader, hdr *models.SectionHeader) (models.Section, error) {
	return &AbbrevTable{d: d, hdr: *hdr, sets: make(map[uint64]AbbrevSet)}, nil
}

func (t *AbbrevTable) Kind() models.SectionKind      { return models.KindAbbrev }
func (t *AbbrevTable) Header() *models.SectionHeader { return &t.hdr }

// Set returns the abbreviations starting at off.
func (t *AbbrevTable) Set(off uint64) (AbbrevSet, error) {
	if set, ok := t.sets[off]; ok {
		return set, nil
	}
	if off >= uint64(t.hdr.Size) {
		return nil, models.NewDecodeError(t.hdr.Name, int64(off), "abbreviation offset past end of section")
	}
	c := t.d.Cursor()
	mark := c.Save()
	defer c.Restore(mark)
	if err := c.Seek(t.hdr.Offset + int64(off)); err != nil {
		return nil, err
	}
	end := t.hdr.Offset + t.hdr.Size
	set := make(AbbrevSet)
	for c.Position() < end {
		pos := c.Position()
		code, err := c.ULEB128()
		if err != nil {
			return nil, err
		}
		if code == 0 {
			break
		}
		tag, err := c.ULEB128()
		if err != nil {
			return nil, err
		}
		children, err := c.Bool()
		if err != nil {
			return nil, err
		}
		a := &Abbrev{Code: code, Tag: dwarf.Tag(tag), Children: children}
		for {
			attr, err := c.ULEB128()
			if err != nil {
				return nil, err
			}
			form, err := c.ULEB128()
			if err != nil {
				return nil, err
			}
			if attr == 0 && form == 0 {
				break
			}
			spec := AttrSpec{Attr: dwarf.Attr(attr), Form: Form(form)}
			if spec.Form == FormImplicitConst {
				if spec.ImplicitConst, err = c.SLEB128(); err != nil {
					return nil, err
				}
			}
			a.Attrs = append(a.Attrs, spec)
		}
		if _, dup := set[code]; dup {
			return nil, models.NewDecodeError(t.hdr.Name, pos-t.hdr.Offset, "duplicate abbreviation code %d", code)
		}
		set[code] = a
	}
	t.sets[off] = set
	return set, nil
}
