package dwarf

import (
	"github.com/lunixbochs/objdwarf/go/loader"
	"github.com/lunixbochs/objdwarf/go/models"
)

// PubName is a global name and the .debug_info offset of its entry,
// relative to the unit.
type PubName struct {
	Offset uint64
	Name   string
}

type PubNameSet struct {
	Offset     int64
	Length     uint64
	Dwarf64    bool
	Version    uint16
	InfoOffset uint64
	InfoLength uint64
	Names      []PubName
}

// PubNamesSection decodes .debug_pubnames and .debug_pubtypes.
type PubNamesSection struct {
	d    *Reader
	hdr  models.SectionHeader
	sets []*PubNameSet
}

func (d *Reader) newPubNamesSection(_ *loader.Reader, hdr *models.SectionHeader) (models.Section, error) {
	return &PubNamesSection{d: d, hdr: *hdr}, nil
}

func (s *PubNamesSection) Kind() models.SectionKind      { return models.KindPubNames }
func (s *PubNamesSection) Header() *models.SectionHeader { return &s.hdr }

func (s *PubNamesSection) Sets() ([]*PubNameSet, error) {
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
	sets := []*PubNameSet{}
	for c.Position() < s.hdr.Offset+s.hdr.Size {
		start := c.Position()
		set := &PubNameSet{Offset: start - s.hdr.Offset}
		if set.Length, set.Dwarf64, err = d.unitLength(); err != nil {
			return nil, err
		}
		end, err := d.bounds(&s.hdr, c.Position(), set.Length)
		if err != nil {
			return nil, err
		}
		if set.Version, err = c.U16(); err != nil {
			return nil, err
		}
		if set.Version != 2 {
			return nil, d.decodeError(start, "unsupported name table version %d", set.Version)
		}
		if set.InfoOffset, err = d.offset(set.Dwarf64); err != nil {
			return nil, err
		}
		if set.InfoLength, err = c.Offset(set.Dwarf64); err != nil {
			return nil, err
		}
		for c.Position() < end {
			off, err := c.Offset(set.Dwarf64)
			if err != nil {
				return nil, err
			}
			if off == 0 {
				break
			}
			name, err := c.CString()
			if err != nil {
				return nil, err
			}
			set.Names = append(set.Names, PubName{Offset: off, Name: name})
		}
		sets = append(sets, set)
		if err := c.Seek(end); err != nil {
			return nil, err
		}
	}
	s.sets = sets
	return sets, nil
}

// Lookup returns the first entry named name.
func (s *PubNamesSection) Lookup(name string) (*PubNameSet, PubName, bool) {
	sets, err := s.Sets()
	if err != nil {
		return nil, PubName{}, false
	}
	for _, set := range sets {
		for _, n := range set.Names {
			if n.Name == name {
				return set, n, true
			}
		}
	}
	return nil, PubName{}, false
}
