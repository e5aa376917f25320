package dwarf

import (
	"github.com/lunixbochs/objdwarf/go/loader"
	"github.com/lunixbochs/objdwarf/go/models"
)

// Macro opcodes. The first four are shared by .debug_macinfo and
// .debug_macro.
const (
	MacroDefine     = 0x01
	MacroUndef      = 0x02
	MacroStartFile  = 0x03
	MacroEndFile    = 0x04
	MacroDefineStrp = 0x05
	MacroUndefStrp  = 0x06
	MacroImport     = 0x07
	MacroDefineSup  = 0x08
	MacroUndefSup   = 0x09
	MacroImportSup  = 0x0a
	MacroDefineStrx = 0x0b
	MacroUndefStrx  = 0x0c

	// MacinfoVendorExt only appears in .debug_macinfo.
	MacinfoVendorExt = 0xff
)

const (
	macroOffsetSize    = 1 << 0
	macroLineOffset    = 1 << 1
	macroOperandsTable = 1 << 2
)

// MacroEntry is one macro operation. Text holds the macro string of
// define/undef operations, resolved through .debug_str for the _strp
// variants. Offset holds import targets, _sup string offsets and _strx
// indexes.
type MacroEntry struct {
	Op     uint8
	Line   uint64
	File   uint64
	Text   string
	Offset uint64
	// Operands holds the values of vendor operations described by the
	// opcode operands table.
	Operands []Value
}

// MacroUnit is the macro list at one offset. The header fields are only
// set for .debug_macro.
type MacroUnit struct {
	Offset        int64
	Version       uint16
	Flags         uint8
	LineOffset    uint64
	HasLineOffset bool
	Entries       []MacroEntry
}

// MacroSection decodes .debug_macinfo, or .debug_macro when modern is set.
type MacroSection struct {
	d      *Reader
	hdr    models.SectionHeader
	modern bool
	units  map[uint64]*MacroUnit
}

func (d *Reader) newMacroSection(modern bool) loader.Factory {
	return func(_ *loader.Reader, hdr *models.SectionHeader) (models.Section, error) {
		return &MacroSection{d: d, hdr: *hdr, modern: modern, units: make(map[uint64]*MacroUnit)}, nil
	}
}

func (s *MacroSection) Kind() models.SectionKind      { return models.KindMacro }
func (s *MacroSection) Header() *models.SectionHeader { return &s.hdr }
func (s *MacroSection) Modern() bool                  { return s.modern }

// Unit decodes the macro list at off, usually the DW_AT_macro_info or
// DW_AT_macros value of a compile unit. Imported units are not followed.
func (s *MacroSection) Unit(off uint64) (*MacroUnit, error) {
	if u, ok := s.units[off]; ok {
		return u, nil
	}
	if off >= uint64(s.hdr.Size) {
		return nil, models.NewDecodeError(s.hdr.Name, int64(off), "macro offset past end of section")
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
	if err := c.Seek(s.hdr.Offset + int64(off)); err != nil {
		return nil, err
	}
	u := &MacroUnit{Offset: int64(off)}
	if s.modern {
		err = s.readModern(u)
	} else {
		err = s.readLegacy(u)
	}
	if err != nil {
		return nil, err
	}
	s.units[off] = u
	return u, nil
}

// lineText reads the line number and string operands of define/undef.
func (s *MacroSection) lineText(e *MacroEntry) (err error) {
	c := s.d.Cursor()
	if e.Line, err = c.ULEB128(); err != nil {
		return err
	}
	e.Text, err = c.CString()
	return err
}

func (s *MacroSection) startFile(e *MacroEntry) (err error) {
	c := s.d.Cursor()
	if e.Line, err = c.ULEB128(); err != nil {
		return err
	}
	e.File, err = c.ULEB128()
	return err
}

func (s *MacroSection) readLegacy(u *MacroUnit) error {
	c := s.d.Cursor()
	end := s.hdr.Offset + s.hdr.Size
	for c.Position() < end {
		pos := c.Position()
		op, err := c.U8()
		if err != nil {
			return err
		}
		if op == 0 {
			return nil
		}
		e := MacroEntry{Op: op}
		switch op {
		case MacroDefine, MacroUndef:
			err = s.lineText(&e)
		case MacroStartFile:
			err = s.startFile(&e)
		case MacroEndFile:
		case MacinfoVendorExt:
			if e.Offset, err = c.ULEB128(); err == nil {
				e.Text, err = c.CString()
			}
		default:
			return s.d.decodeError(pos, "unknown macinfo opcode 0x%x", op)
		}
		if err != nil {
			return err
		}
		u.Entries = append(u.Entries, e)
	}
	return nil
}

func (s *MacroSection) readModern(u *MacroUnit) error {
	d := s.d
	c := d.Cursor()
	start := c.Position()
	var err error
	if u.Version, err = c.U16(); err != nil {
		return err
	}
	if u.Version != 4 && u.Version != 5 {
		return d.decodeError(start, "unsupported macro version %d", u.Version)
	}
	if u.Flags, err = c.U8(); err != nil {
		return err
	}
	dwarf64 := u.Flags&macroOffsetSize != 0
	if u.Flags&macroLineOffset != 0 {
		u.HasLineOffset = true
		if u.LineOffset, err = d.offset(dwarf64); err != nil {
			return err
		}
	}
	operands := make(map[uint8][]Form)
	if u.Flags&macroOperandsTable != 0 {
		count, err := c.U8()
		if err != nil {
			return err
		}
		for i := 0; i < int(count); i++ {
			op, err := c.U8()
			if err != nil {
				return err
			}
			n, err := c.ULEB128()
			if err != nil {
				return err
			}
			forms, err := c.Bytes(int(n))
			if err != nil {
				return err
			}
			for _, f := range forms {
				operands[op] = append(operands[op], Form(f))
			}
		}
	}
	defer d.SetContext(FormContext{Version: int(u.Version), Dwarf64: dwarf64})()

	end := s.hdr.Offset + s.hdr.Size
	for c.Position() < end {
		pos := c.Position()
		op, err := c.U8()
		if err != nil {
			return err
		}
		if op == 0 {
			return nil
		}
		e := MacroEntry{Op: op}
		switch op {
		case MacroDefine, MacroUndef:
			err = s.lineText(&e)
		case MacroStartFile:
			err = s.startFile(&e)
		case MacroEndFile:
		case MacroDefineStrp, MacroUndefStrp:
			if e.Line, err = c.ULEB128(); err != nil {
				return err
			}
			var v Value
			if v, err = d.ReadForm(FormStrp); err == nil {
				e.Offset, e.Text = v.Uint(), v.Str
			}
		case MacroDefineSup, MacroUndefSup:
			if e.Line, err = c.ULEB128(); err == nil {
				e.Offset, err = c.Offset(dwarf64)
			}
		case MacroDefineStrx, MacroUndefStrx:
			if e.Line, err = c.ULEB128(); err == nil {
				e.Offset, err = c.ULEB128()
			}
		case MacroImport:
			e.Offset, err = d.offset(dwarf64)
		case MacroImportSup:
			e.Offset, err = c.Offset(dwarf64)
		default:
			forms, ok := operands[op]
			if !ok {
				return d.decodeError(pos, "macro opcode 0x%x missing from the operands table", op)
			}
			for _, f := range forms {
				v, err := d.ReadForm(f)
				if err != nil {
					return err
				}
				e.Operands = append(e.Operands, v)
			}
		}
		if err != nil {
			return err
		}
		u.Entries = append(u.Entries, e)
	}
	return nil
}
