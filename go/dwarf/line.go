package dwarf

import (
	"path"

	"github.com/pkg/errors"

	"github.com/lunixbochs/objdwarf/go/loader"
	"github.com/lunixbochs/objdwarf/go/models"
)

const (
	lnsCopy             = 1
	lnsAdvancePC        = 2
	lnsAdvanceLine      = 3
	lnsSetFile          = 4
	lnsSetColumn        = 5
	lnsNegateStmt       = 6
	lnsSetBasicBlock    = 7
	lnsConstAddPC       = 8
	lnsFixedAdvancePC   = 9
	lnsSetPrologueEnd   = 10
	lnsSetEpilogueBegin = 11
	lnsSetISA           = 12

	lneEndSequence     = 1
	lneSetAddress      = 2
	lneDefineFile      = 3
	lneSetDiscriminator = 4

	lnctPath           = 1
	lnctDirectoryIndex = 2
	lnctTimestamp      = 3
	lnctSize           = 4
	lnctMD5            = 5
)

type LineFile struct {
	Name   string
	Dir    uint64
	MTime  uint64
	Length uint64
	MD5    []byte
}

// LineHeader is a line number program header. Offset is relative to the
// start of .debug_line.
type LineHeader struct {
	FormContext
	Offset           int64
	Length           uint64
	HeaderLength     uint64
	MinInstLength    uint8
	MaxOpsPerInst    uint8
	DefaultIsStmt    bool
	LineBase         int8
	LineRange        uint8
	OpcodeBase       uint8
	StdOpcodeLengths []uint8
	Dirs             []string
	Files            []LineFile
}

// LineRow is one row of the line number matrix.
type LineRow struct {
	Address       uint64
	OpIndex       uint64
	File          uint64
	Line          int64
	Column        uint64
	IsStmt        bool
	BasicBlock    bool
	EndSequence   bool
	PrologueEnd   bool
	EpilogueBegin bool
	ISA           uint64
	Discriminator uint64
}

// FileName returns the path of file register value i joined with its
// include directory. Versions before 5 count files and directories from 1
// and use directory 0 for the compilation directory, which is left out.
func (h *LineHeader) FileName(i uint64) (string, bool) {
	idx := int64(i)
	if h.Version < 5 {
		idx--
	}
	if idx < 0 || idx >= int64(len(h.Files)) {
		return "", false
	}
	f := h.Files[idx]
	if path.IsAbs(f.Name) {
		return f.Name, true
	}
	dir := int64(f.Dir)
	if h.Version < 5 {
		dir--
	}
	if dir < 0 || dir >= int64(len(h.Dirs)) {
		return f.Name, true
	}
	return path.Join(h.Dirs[dir], f.Name), true
}

type LineProgram struct {
	Header LineHeader
	Rows   []LineRow
}

// LineSection decodes .debug_line.
type LineSection struct {
	d   *Reader
	hdr models.SectionHeader
}

func (d *Reader) newLineSection(_ *loader.Reader, hdr *models.SectionHeader) (models.Section, error) {
	return &LineSection{d: d, hdr: *hdr}, nil
}

func (s *LineSection) Kind() models.SectionKind      { return models.KindLine }
func (s *LineSection) Header() *models.SectionHeader { return &s.hdr }

// Program decodes the program at off, usually the DW_AT_stmt_list of a
// compile unit, and runs it.
func (s *LineSection) Program(off uint64) (*LineProgram, error) {
	if off >= uint64(s.hdr.Size) {
		return nil, models.NewDecodeError(s.hdr.Name, int64(off), "line program offset past end of section")
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
	p := &LineProgram{}
	end, err := s.readHeader(&p.Header)
	if err != nil {
		return nil, errors.WithMessagef(err, "line program at 0x%x", off)
	}
	defer d.SetContext(p.Header.FormContext)()
	if p.Rows, err = s.run(&p.Header, end); err != nil {
		return nil, errors.WithMessagef(err, "line program at 0x%x", off)
	}
	return p, nil
}

func (s *LineSection) readHeader(h *LineHeader) (end int64, err error) {
	d := s.d
	c := d.Cursor()
	start := c.Position()
	h.Offset = start - s.hdr.Offset
	if h.Length, h.Dwarf64, err = d.unitLength(); err != nil {
		return 0, err
	}
	if end, err = d.bounds(&s.hdr, c.Position(), h.Length); err != nil {
		return 0, err
	}
	version, err := c.U16()
	if err != nil {
		return 0, err
	}
	if version < 2 || version > 5 {
		return 0, d.decodeError(start, "unsupported line table version %d", version)
	}
	h.Version, h.AddrSize = int(version), d.AddrSize()
	if version >= 5 {
		addrSize, err := c.U8()
		if err != nil {
			return 0, err
		}
		if addrSize == 0 || addrSize > 8 {
			return 0, d.decodeError(start, "unsupported address size %d", addrSize)
		}
		h.AddrSize = int(addrSize)
		// segment selector size
		if err := c.Skip(1); err != nil {
			return 0, err
		}
	}
	if h.HeaderLength, err = c.Offset(h.Dwarf64); err != nil {
		return 0, err
	}
	program := c.Position() + int64(h.HeaderLength)
	if program > end {
		return 0, d.decodeError(start, "header length 0x%x runs past the program", h.HeaderLength)
	}
	if h.MinInstLength, err = c.U8(); err != nil {
		return 0, err
	}
	h.MaxOpsPerInst = 1
	if version >= 4 {
		if h.MaxOpsPerInst, err = c.U8(); err != nil {
			return 0, err
		}
	}
	if h.DefaultIsStmt, err = c.Bool(); err != nil {
		return 0, err
	}
	if h.LineBase, err = c.I8(); err != nil {
		return 0, err
	}
	if h.LineRange, err = c.U8(); err != nil {
		return 0, err
	}
	if h.LineRange == 0 {
		return 0, d.decodeError(start, "zero line range")
	}
	if h.OpcodeBase, err = c.U8(); err != nil {
		return 0, err
	}
	if h.OpcodeBase > 0 {
		if h.StdOpcodeLengths, err = c.Bytes(int(h.OpcodeBase) - 1); err != nil {
			return 0, err
		}
	}
	if version >= 5 {
		err = s.readEntryTables(h)
	} else {
		err = s.readLegacyTables(h)
	}
	if err != nil {
		return 0, err
	}
	// vendor extensions may follow the tables
	if err := c.Seek(program); err != nil {
		return 0, err
	}
	return end, nil
}

func (s *LineSection) readLegacyTables(h *LineHeader) error {
	c := s.d.Cursor()
	for {
		dir, err := c.CString()
		if err != nil {
			return err
		}
		if dir == "" {
			break
		}
		h.Dirs = append(h.Dirs, dir)
	}
	for {
		name, err := c.CString()
		if err != nil {
			return err
		}
		if name == "" {
			return nil
		}
		f, err := s.readFileAttrs(name)
		if err != nil {
			return err
		}
		h.Files = append(h.Files, f)
	}
}

// readFileAttrs reads the directory, mtime and length that follow a file
// name in pre-5 tables and DW_LNE_define_file.
func (s *LineSection) readFileAttrs(name string) (LineFile, error) {
	c := s.d.Cursor()
	f := LineFile{Name: name}
	var err error
	if f.Dir, err = c.ULEB128(); err != nil {
		return f, err
	}
	if f.MTime, err = c.ULEB128(); err != nil {
		return f, err
	}
	f.Length, err = c.ULEB128()
	return f, err
}

type entryFormat struct {
	content uint64
	form    Form
}

// readEntryTables reads the DWARF 5 directory and file tables, whose
// fields are described by (content type, form) pairs.
func (s *LineSection) readEntryTables(h *LineHeader) error {
	d := s.d
	defer d.SetContext(h.FormContext)()
	dirs, err := s.readEntries()
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		h.Dirs = append(h.Dirs, dir.Name)
	}
	h.Files, err = s.readEntries()
	return err
}

func (s *LineSection) readEntries() ([]LineFile, error) {
	d := s.d
	c := d.Cursor()
	count, err := c.U8()
	if err != nil {
		return nil, err
	}
	formats := make([]entryFormat, count)
	for i := range formats {
		if formats[i].content, err = c.ULEB128(); err != nil {
			return nil, err
		}
		form, err := c.ULEB128()
		if err != nil {
			return nil, err
		}
		formats[i].form = Form(form)
	}
	n, err := c.ULEB128()
	if err != nil {
		return nil, err
	}
	if n > uint64(c.Len()-c.Position()) {
		return nil, d.decodeError(c.Position(), "%d line table entries", n)
	}
	entries := make([]LineFile, 0, n)
	for i := uint64(0); i < n; i++ {
		var f LineFile
		for _, ef := range formats {
			v, err := d.ReadForm(ef.form)
			if err != nil {
				return nil, err
			}
			switch ef.content {
			case lnctPath:
				f.Name = v.Str
			case lnctDirectoryIndex:
				f.Dir = v.Uint()
			case lnctTimestamp:
				f.MTime = v.Uint()
			case lnctSize:
				f.Length = v.Uint()
			case lnctMD5:
				f.MD5 = v.Block
			}
		}
		entries = append(entries, f)
	}
	return entries, nil
}

type lineState struct {
	LineRow
	h *LineHeader
}

func (st *lineState) reset() {
	st.LineRow = LineRow{File: 1, Line: 1, IsStmt: st.h.DefaultIsStmt}
}

// advance moves the address by an operation advance, honouring VLIW
// op_index when more than one operation fits an instruction.
func (st *lineState) advance(adv uint64) {
	minInst := uint64(st.h.MinInstLength)
	maxOps := uint64(st.h.MaxOpsPerInst)
	if maxOps <= 1 {
		st.Address += minInst * adv
		return
	}
	st.Address += minInst * ((st.OpIndex + adv) / maxOps)
	st.OpIndex = (st.OpIndex + adv) % maxOps
}

func (s *LineSection) run(h *LineHeader, end int64) ([]LineRow, error) {
	d := s.d
	c := d.Cursor()
	st := &lineState{h: h}
	st.reset()
	var rows []LineRow
	emit := func() {
		rows = append(rows, st.LineRow)
		st.BasicBlock, st.PrologueEnd, st.EpilogueBegin = false, false, false
		st.Discriminator = 0
	}
	for c.Position() < end {
		pos := c.Position()
		op, err := c.U8()
		if err != nil {
			return nil, err
		}
		if op >= h.OpcodeBase {
			adj := uint64(op - h.OpcodeBase)
			st.advance(adj / uint64(h.LineRange))
			st.Line += int64(h.LineBase) + int64(adj%uint64(h.LineRange))
			emit()
			continue
		}
		switch op {
		case 0:
			err = s.extended(st, &rows, pos)
		case lnsCopy:
			emit()
		case lnsAdvancePC:
			var adv uint64
			if adv, err = c.ULEB128(); err == nil {
				st.advance(adv)
			}
		case lnsAdvanceLine:
			var delta int64
			if delta, err = c.SLEB128(); err == nil {
				st.Line += delta
			}
		case lnsSetFile:
			st.File, err = c.ULEB128()
		case lnsSetColumn:
			st.Column, err = c.ULEB128()
		case lnsNegateStmt:
			st.IsStmt = !st.IsStmt
		case lnsSetBasicBlock:
			st.BasicBlock = true
		case lnsConstAddPC:
			st.advance(uint64(255-h.OpcodeBase) / uint64(h.LineRange))
		case lnsFixedAdvancePC:
			var adv uint16
			if adv, err = c.U16(); err == nil {
				st.Address += uint64(adv)
				st.OpIndex = 0
			}
		case lnsSetPrologueEnd:
			st.PrologueEnd = true
		case lnsSetEpilogueBegin:
			st.EpilogueBegin = true
		case lnsSetISA:
			st.ISA, err = c.ULEB128()
		default:
			// unknown standard opcode: skip its ULEB128 operands
			for i := uint8(0); i < h.StdOpcodeLengths[op-1] && err == nil; i++ {
				_, err = c.ULEB128()
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func (s *LineSection) extended(st *lineState, rows *[]LineRow, pos int64) error {
	d := s.d
	c := d.Cursor()
	length, err := c.ULEB128()
	if err != nil {
		return err
	}
	if length == 0 {
		return nil
	}
	next := c.Position() + int64(length)
	if length > uint64(c.Len()-c.Position()) {
		return d.decodeError(pos, "extended opcode length %d", length)
	}
	sub, err := c.U8()
	if err != nil {
		return err
	}
	switch sub {
	case lneEndSequence:
		st.EndSequence = true
		*rows = append(*rows, st.LineRow)
		st.reset()
	case lneSetAddress:
		at := c.Position()
		addr, err := c.Uint(int(length - 1))
		if err != nil {
			return err
		}
		if st.Address, err = d.relocate(at, addr); err != nil {
			return err
		}
		st.OpIndex = 0
	case lneDefineFile:
		name, err := c.CString()
		if err != nil {
			return err
		}
		f, err := s.readFileAttrs(name)
		if err != nil {
			return err
		}
		st.h.Files = append(st.h.Files, f)
	case lneSetDiscriminator:
		if st.Discriminator, err = c.ULEB128(); err != nil {
			return err
		}
	}
	return c.Seek(next)
}
