// Package dwarf decodes DWARF debug sections on top of a container Reader.
package dwarf

import (
	"debug/elf"

	"github.com/rs/zerolog"

	"github.com/lunixbochs/objdwarf/go/loader"
	"github.com/lunixbochs/objdwarf/go/mmap"
	"github.com/lunixbochs/objdwarf/go/models"
)

// FormContext is the unit encoding forms are decoded under.
type FormContext struct {
	Version  int
	AddrSize int
	Dwarf64  bool
}

// Reader is a container Reader that knows the DWARF sections. Like the
// container Reader it owns one cursor and is not safe for concurrent use.
type Reader struct {
	*loader.Reader

	log zerolog.Logger
	str *StringTable
	ctx FormContext

	// state of the section currently being decoded
	section string
	rel     *loader.RelocationTable
	relBase int64
}

// Open maps and parses the container at path and resolves its .debug_str.
func Open(path string, opts ...loader.Option) (*Reader, error) {
	return OpenMember(path, 0, -1, opts...)
}

// OpenMember is Open for a container stored in [shift, shift+length) of path.
func OpenMember(path string, shift, length int64, opts ...loader.Option) (*Reader, error) {
	d := &Reader{}
	r, err := loader.OpenMember(path, shift, length, d.options(opts)...)
	if err != nil {
		return nil, err
	}
	return d.init(r)
}

// New parses the container in src. The Reader takes ownership of src.
func New(src *mmap.Source, opts ...loader.Option) (*Reader, error) {
	d := &Reader{}
	r, err := loader.New(src, d.options(opts)...)
	if err != nil {
		return nil, err
	}
	return d.init(r)
}

func (d *Reader) options(opts []loader.Option) []loader.Option {
	return append(opts[:len(opts):len(opts)], loader.WithFactories(d.factories()))
}

func (d *Reader) init(r *loader.Reader) (*Reader, error) {
	d.Reader = r
	d.log = r.Logger().With().Str("component", "dwarf").Logger()
	d.ctx = FormContext{Version: 4, AddrSize: r.AddrSize()}
	// strp forms are everywhere, so the string table is resolved up front
	sec, err := d.Section(".debug_str")
	if err != nil {
		r.Close()
		return nil, err
	}
	d.str, _ = sec.(*StringTable)
	if d.str == nil {
		d.log.Debug().Msg("no .debug_str section")
	}
	return d, nil
}

// factories is the DWARF capability table. The closures bind the decoders to
// d, which is filled in once the container has been parsed.
func (d *Reader) factories() map[string]loader.Factory {
	return map[string]loader.Factory{
		".debug_str":       d.newStringTable,
		".debug_line_str":  d.newStringTable,
		".debug_abbrev":    d.newAbbrevTable,
		".debug_info":      d.newInfoSection,
		".rela.debug_info": loader.NewRelocationTable,
		".rel.debug_info":  loader.NewRelocationTable,
		".debug_line":      d.newLineSection,
		".debug_aranges":   d.newArangesSection,
		".debug_pubnames":  d.newPubNamesSection,
		".debug_pubtypes":  d.newPubNamesSection,
		".debug_macinfo":   d.newMacroSection(false),
		".debug_macro":     d.newMacroSection(true),
	}
}

// Strings returns the .debug_str table, or nil if the file has none.
func (d *Reader) Strings() *StringTable { return d.str }

func (d *Reader) LineStrings() (*StringTable, error) {
	sec, err := d.Section(".debug_line_str")
	t, _ := sec.(*StringTable)
	return t, err
}

func (d *Reader) Abbrev() (*AbbrevTable, error) {
	sec, err := d.Section(".debug_abbrev")
	t, _ := sec.(*AbbrevTable)
	return t, err
}

func (d *Reader) Info() (*InfoSection, error) {
	sec, err := d.Section(".debug_info")
	s, _ := sec.(*InfoSection)
	return s, err
}

func (d *Reader) Line() (*LineSection, error) {
	sec, err := d.Section(".debug_line")
	s, _ := sec.(*LineSection)
	return s, err
}

func (d *Reader) Aranges() (*ArangesSection, error) {
	sec, err := d.Section(".debug_aranges")
	s, _ := sec.(*ArangesSection)
	return s, err
}

func (d *Reader) PubNames() (*PubNamesSection, error) {
	sec, err := d.Section(".debug_pubnames")
	s, _ := sec.(*PubNamesSection)
	return s, err
}

func (d *Reader) PubTypes() (*PubNamesSection, error) {
	sec, err := d.Section(".debug_pubtypes")
	s, _ := sec.(*PubNamesSection)
	return s, err
}

// MacInfo returns the pre-DWARF 5 .debug_macinfo decoder.
func (d *Reader) MacInfo() (*MacroSection, error) {
	sec, err := d.Section(".debug_macinfo")
	s, _ := sec.(*MacroSection)
	return s, err
}

// Macro returns the DWARF 5 / GNU .debug_macro decoder.
func (d *Reader) Macro() (*MacroSection, error) {
	sec, err := d.Section(".debug_macro")
	s, _ := sec.(*MacroSection)
	return s, err
}

// Context returns the encoding ReadForm currently decodes under.
func (d *Reader) Context() FormContext { return d.ctx }

// SetContext switches the form encoding and returns a func restoring the
// previous one.
func (d *Reader) SetContext(ctx FormContext) (restore func()) {
	prev := d.ctx
	if ctx.AddrSize <= 0 {
		ctx.AddrSize = d.AddrSize()
	}
	d.ctx = ctx
	return func() { d.ctx = prev }
}

// EnterUnit decodes subsequent forms with the encoding of u.
func (d *Reader) EnterUnit(u *Unit) (restore func()) {
	return d.SetContext(u.FormContext)
}

// enter makes hdr the section forms are read from: its name labels decode
// errors and, in relocatable ELF objects, its relocations patch the offsets
// and addresses read from it.
func (d *Reader) enter(hdr *models.SectionHeader) (restore func(), err error) {
	name, rel, base := d.section, d.rel, d.relBase
	restore = func() { d.section, d.rel, d.relBase = name, rel, base }
	d.section, d.rel, d.relBase = hdr.Name, nil, hdr.Offset
	if d.Format() == models.FormatELF && elf.Type(d.FileType()) == elf.ET_REL {
		if d.rel, err = d.relocations(hdr.Name); err != nil {
			restore()
			return nil, err
		}
	}
	return restore, nil
}

func (d *Reader) relocations(name string) (*loader.RelocationTable, error) {
	for _, prefix := range []string{".rela", ".rel"} {
		sec, err := d.Section(prefix + name)
		if err != nil {
			return nil, err
		}
		if t, ok := sec.(*loader.RelocationTable); ok {
			return t, nil
		}
	}
	return nil, nil
}

// relocate applies the entered section's relocation for a field read at the
// absolute file position pos.
func (d *Reader) relocate(pos int64, v uint64) (uint64, error) {
	if d.rel == nil {
		return v, nil
	}
	return d.rel.Apply(uint64(pos-d.relBase), v)
}

// sectionName labels decode errors raised outside of any entered section.
func (d *Reader) sectionName() string {
	if d.section == "" {
		return "DWARF"
	}
	return d.section
}

// decodeError reports malformed content at the absolute position pos.
func (d *Reader) decodeError(pos int64, format string, a ...interface{}) error {
	if d.section != "" {
		pos -= d.relBase
	}
	return models.NewDecodeError(d.sectionName(), pos, format, a...)
}

// unitLength reads an initial length field, switching to 64-bit offsets on
// the 0xffffffff escape.
func (d *Reader) unitLength() (length uint64, dwarf64 bool, err error) {
	c := d.Cursor()
	pos := c.Position()
	n, err := c.U32()
	if err != nil {
		return 0, false, err
	}
	switch {
	case n == 0xffffffff:
		length, err = c.U64()
		return length, true, err
	case n >= 0xfffffff0:
		return 0, false, d.decodeError(pos, "reserved unit length 0x%x", n)
	}
	return uint64(n), false, nil
}

// offset reads a relocated 4- or 8-byte section offset.
func (d *Reader) offset(dwarf64 bool) (uint64, error) {
	c := d.Cursor()
	pos := c.Position()
	v, err := c.Offset(dwarf64)
	if err != nil {
		return 0, err
	}
	return d.relocate(pos, v)
}

// bounds checks that [start, start+length) lies inside hdr and returns the
// absolute end.
func (d *Reader) bounds(hdr *models.SectionHeader, start int64, length uint64) (int64, error) {
	end := start + int64(length)
	if length > uint64(hdr.Size) || end > hdr.Offset+hdr.Size || end < start {
		return 0, models.NewDecodeError(hdr.Name, start-hdr.Offset, "length 0x%x runs past the end of the section", length)
	}
	return end, nil
}
