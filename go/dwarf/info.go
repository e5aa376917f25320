package dwarf

import (
	"debug/dwarf"

	"github.com/pkg/errors"

	"github.com/lunixbochs/objdwarf/go/loader"
	"github.com/lunixbochs/objdwarf/go/models"
)

// DWARF 5 unit types.
const (
	UnitCompile      = 0x01
	UnitType         = 0x02
	UnitPartial      = 0x03
	UnitSkeleton     = 0x04
	UnitSplitCompile = 0x05
	UnitSplitType    = 0x06
)

// Unit is one .debug_info unit header. Offsets are relative to the start
// of the section.
type Unit struct {
	FormContext
	Offset    int64
	Length    uint64
	Type      uint8
	AbbrevOff uint64
	// DwoID is set for skeleton and split compile units.
	DwoID uint64
	// Signature and TypeOffset are set for type units.
	Signature  uint64
	TypeOffset uint64
	// DataOffset is the offset of the first entry and End the offset just
	// past the unit.
	DataOffset int64
	End        int64
}

// Field is one decoded attribute of an Entry.
type Field struct {
	Attr  dwarf.Attr
	Value Value
}

// Entry is one debugging information entry. Depth counts the parents
// between it and the unit entry.
type Entry struct {
	Offset   int64
	Depth    int
	Tag      dwarf.Tag
	Children bool
	Fields   []Field
}

// Val returns the first value of attr.
func (e *Entry) Val(attr dwarf.Attr) (Value, bool) {
	for _, f := range e.Fields {
		if f.Attr == attr {
			return f.Value, true
		}
	}
	return Value{}, false
}

// InfoSection decodes .debug_info.
type InfoSection struct {
	d     *Reader
	hdr   models.SectionHeader
	units []*Unit
}

func (d *Reader) newInfoSection(_ *loader.Reader, hdr *models.SectionHeader) (models.Section, error) {
	return &InfoSection{d: d, hdr: *hdr}, nil
}

func (s *InfoSection) Kind() models.SectionKind      { return models.KindInfo }
func (s *InfoSection) Header() *models.SectionHeader { return &s.hdr }

// Units returns the unit headers of the section, parsing them on first call.
func (s *InfoSection) Units() ([]*Unit, error) {
	if s.units != nil {
		return s.units, nil
	}
	d := s.d
	restore, err := d.enter(&s.hdr)
	if err != nil {
		return nil, err
	}
	defer restore()
	c := d.Cursor()
	mark := c.Save()
	defer c.Restore(mark)
	if err := c.Seek(s.hdr.Offset); err != nil {
		return nil, err
	}

	units := []*Unit{}
	end := s.hdr.Offset + s.hdr.Size
	for c.Position() < end {
		u, err := s.readUnit()
		if err != nil {
			return nil, err
		}
		units = append(units, u)
		if err := c.Seek(s.hdr.Offset + u.End); err != nil {
			return nil, err
		}
	}
	s.units = units
	d.log.Debug().Int("units", len(units)).Msg("read unit headers")
	return units, nil
}

func (s *InfoSection) readUnit() (*Unit, error) {
	d := s.d
	c := d.Cursor()
	start := c.Position()
	u := &Unit{Offset: start - s.hdr.Offset, Type: UnitCompile}
	length, dwarf64, err := d.unitLength()
	if err != nil {
		return nil, err
	}
	end, err := d.bounds(&s.hdr, c.Position(), length)
	if err != nil {
		return nil, err
	}
	u.Length, u.Dwarf64, u.End = length, dwarf64, end-s.hdr.Offset
	version, err := c.U16()
	if err != nil {
		return nil, err
	}
	if version < 2 || version > 5 {
		return nil, d.decodeError(start, "unsupported unit version %d", version)
	}
	u.Version = int(version)
	var addrSize uint8
	if version >= 5 {
		if u.Type, err = c.U8(); err != nil {
			return nil, err
		}
		if addrSize, err = c.U8(); err != nil {
			return nil, err
		}
		if u.AbbrevOff, err = d.offset(dwarf64); err != nil {
			return nil, err
		}
		switch u.Type {
		case UnitSkeleton, UnitSplitCompile:
			u.DwoID, err = c.U64()
		case UnitType, UnitSplitType:
			if u.Signature, err = c.U64(); err == nil {
				u.TypeOffset, err = c.Offset(dwarf64)
			}
		case UnitCompile, UnitPartial:
		default:
			return nil, d.decodeError(start, "unknown unit type 0x%x", u.Type)
		}
		if err != nil {
			return nil, err
		}
	} else {
		if u.AbbrevOff, err = d.offset(dwarf64); err != nil {
			return nil, err
		}
		if addrSize, err = c.U8(); err != nil {
			return nil, err
		}
	}
	if addrSize == 0 || addrSize > 8 {
		return nil, d.decodeError(start, "unsupported address size %d", addrSize)
	}
	u.AddrSize = int(addrSize)
	u.DataOffset = c.Position() - s.hdr.Offset
	if u.DataOffset > u.End {
		return nil, d.decodeError(start, "unit header runs past the unit")
	}
	return u, nil
}

// Entries decodes every entry of u in section order.
func (s *InfoSection) Entries(u *Unit) ([]*Entry, error) {
	d := s.d
	abbrevs, err := d.Abbrev()
	if err != nil {
		return nil, err
	}
	if abbrevs == nil {
		return nil, models.NewDecodeError(s.hdr.Name, u.Offset, "no .debug_abbrev section")
	}
	set, err := abbrevs.Set(u.AbbrevOff)
	if err != nil {
		return nil, err
	}
	restore, err := d.enter(&s.hdr)
	if err != nil {
		return nil, err
	}
	defer restore()
	defer d.EnterUnit(u)()
	c := d.Cursor()
	mark := c.Save()
	defer c.Restore(mark)
	if err := c.Seek(s.hdr.Offset + u.DataOffset); err != nil {
		return nil, err
	}

	var entries []*Entry
	depth := 0
	end := s.hdr.Offset + u.End
	for c.Position() < end {
		pos := c.Position()
		code, err := c.ULEB128()
		if err != nil {
			return nil, err
		}
		if code == 0 {
			// end of a sibling chain, or padding after the unit entry
			if depth > 0 {
				depth--
			}
			continue
		}
		a, ok := set[code]
		if !ok {
			return nil, d.decodeError(pos, "unknown abbreviation code %d", code)
		}
		e := &Entry{Offset: pos - s.hdr.Offset, Depth: depth, Tag: a.Tag, Children: a.Children}
		e.Fields = make([]Field, 0, len(a.Attrs))
		for _, spec := range a.Attrs {
			v, err := d.ReadAttrValue(spec)
			if err != nil {
				return nil, errors.WithMessagef(err, "entry at 0x%x", e.Offset)
			}
			e.Fields = append(e.Fields, Field{Attr: spec.Attr, Value: v})
		}
		entries = append(entries, e)
		if a.Children {
			depth++
		}
	}
	return entries, nil
}
