package dwarf

import (
	"github.com/lunixbochs/objdwarf/go/loader"
	"github.com/lunixbochs/objdwarf/go/models"
)

type Arange struct {
	Addr   uint64
	Length uint64
}

// ArangeSet maps address ranges to the unit at InfoOffset.
type ArangeSet struct {
	Offset     int64
	Length     uint64
	Dwarf64    bool
	Version    uint16
	InfoOffset uint64
	AddrSize   uint8
	SegSize    uint8
	Ranges     []Arange
}

// ArangesSection decodes .debug_aranges.
type ArangesSection struct {
	d    *Reader
	hdr  models.SectionHeader
	sets []*ArangeSet
}

func (d *Reader) newArangesSection(_ *loader.Reader, hdr *models.SectionHeader) (models.Section, error) {
	return &ArangesSection{d: d, hdr: *hdr}, nil
}

func (s *ArangesSection) Kind() models.SectionKind      { return models.KindAranges }
func (s *ArangesSection) Header() *models.SectionHeader { return &s.hdr }

// Sets returns every address range set, parsing them on first call.
func (s *ArangesSection) Sets() ([]*ArangeSet, error) {
	if s.sets != nil {
		return s.sets, nil
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
	sets := []*ArangeSet{}
	for c.Position() < s.hdr.Offset+s.hdr.Size {
		set, end, err := s.readSet()
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
		if err := c.Seek(end); err != nil {
			return nil, err
		}
	}
	s.sets = sets
	return sets, nil
}

func (s *ArangesSection) readSet() (*ArangeSet, int64, error) {
	d := s.d
	c := d.Cursor()
	start := c.Position()
	set := &ArangeSet{Offset: start - s.hdr.Offset}
	var err error
	if set.Length, set.Dwarf64, err = d.unitLength(); err != nil {
		return nil, 0, err
	}
	end, err := d.bounds(&s.hdr, c.Position(), set.Length)
	if err != nil {
		return nil, 0, err
	}
	if set.Version, err = c.U16(); err != nil {
		return nil, 0, err
	}
	if set.Version != 2 && set.Version != 3 {
		return nil, 0, d.decodeError(start, "unsupported aranges version %d", set.Version)
	}
	if set.InfoOffset, err = d.offset(set.Dwarf64); err != nil {
		return nil, 0, err
	}
	if set.AddrSize, err = c.U8(); err != nil {
		return nil, 0, err
	}
	if set.SegSize, err = c.U8(); err != nil {
		return nil, 0, err
	}
	if set.AddrSize == 0 || set.AddrSize > 8 {
		return nil, 0, d.decodeError(start, "unsupported address size %d", set.AddrSize)
	}
	// tuples are aligned to their own size from the start of the set
	tuple := int64(set.SegSize) + 2*int64(set.AddrSize)
	if pad := (c.Position() - start) % tuple; pad != 0 {
		if err := c.Skip(tuple - pad); err != nil {
			return nil, 0, err
		}
	}
	for c.Position()+tuple <= end {
		if set.SegSize > 0 {
			if err := c.Skip(int64(set.SegSize)); err != nil {
				return nil, 0, err
			}
		}
		at := c.Position()
		addr, err := c.Uint(int(set.AddrSize))
		if err != nil {
			return nil, 0, err
		}
		if addr, err = d.relocate(at, addr); err != nil {
			return nil, 0, err
		}
		length, err := c.Uint(int(set.AddrSize))
		if err != nil {
			return nil, 0, err
		}
		if addr == 0 && length == 0 {
			break
		}
		set.Ranges = append(set.Ranges, Arange{Addr: addr, Length: length})
	}
	return set, end, nil
}
