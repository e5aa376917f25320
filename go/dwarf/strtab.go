package dwarf

import (
	"github.com/lunixbochs/objdwarf/go/loader"
	"github.com/lunixbochs/objdwarf/go/models"
)

// StringTable resolves offsets into .debug_str or .debug_line_str.
type StringTable struct {
	d   *Reader
	hdr models.SectionHeader
}

func (d *Reader) newStringTable(_ *loader.Reader, hdr *models.SectionHeader) (models.Section, error) {
	return &StringTable{d: d, hdr: *hdr}, nil
}

func (s *StringTable) Kind() models.SectionKind      { return models.KindStringTable }
func (s *StringTable) Header() *models.SectionHeader { return &s.hdr }

// String returns the NUL-terminated string at off. A final string missing
// its terminator ends at the end of the section. The cursor is left where it
// was.
func (s *StringTable) String(off uint64) (string, error) {
	if off >= uint64(s.hdr.Size) {
		return "", models.NewDecodeError(s.hdr.Name, int64(off), "string offset past end of section (size 0x%x)", s.hdr.Size)
	}
	c := s.d.Cursor()
	mark := c.Save()
	defer c.Restore(mark)
	if err := c.Seek(s.hdr.Offset + int64(off)); err != nil {
		return "", err
	}
	return c.CStringBefore(s.hdr.Offset + s.hdr.Size)
}
