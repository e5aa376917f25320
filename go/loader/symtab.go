package loader

import (
	"github.com/lunixbochs/objdwarf/go/models"
	"github.com/lunixbochs/objdwarf/go/stream"
)

// Symbol is one entry of an ELF symbol table or a Mach-O nlist table.
type Symbol struct {
	Name    string `yaml:"name"`
	Value   uint64 `yaml:"value"`
	Size    uint64 `yaml:"size,omitempty"`
	Type    uint8  `yaml:"type"`
	Bind    uint8  `yaml:"bind,omitempty"`
	Section uint16 `yaml:"section"`
}

type elfSym32 struct {
	Name, Value, Size uint32
	Info, Other       uint8
	Shndx             uint16
}

type elfSym64 struct {
	Name        uint32
	Info, Other uint8
	Shndx       uint16
	Value, Size uint64
}

type nlist32 struct {
	Strx       uint32
	Type, Sect uint8
	Desc       uint16
	Value      uint32
}

type nlist64 struct {
	Strx       uint32
	Type, Sect uint8
	Desc       uint16
	Value      uint64
}

// SymbolTable decodes its entries on the first call to Symbols.
type SymbolTable struct {
	r      *Reader
	hdr    models.SectionHeader
	syms   []Symbol
	byName map[string]int
	loaded bool
}

func newSymbolTable(r *Reader, hdr *models.SectionHeader) (models.Section, error) {
	return &SymbolTable{r: r, hdr: *hdr}, nil
}

func (s *SymbolTable) Kind() models.SectionKind      { return models.KindSymbols }
func (s *SymbolTable) Header() *models.SectionHeader { return &s.hdr }

// Symbols returns every entry, including the null symbol of ELF tables so
// relocation indexes line up.
func (s *SymbolTable) Symbols() ([]Symbol, error) {
	if !s.loaded {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s.syms, nil
}

// At returns the symbol with index i.
func (s *SymbolTable) At(i int) (Symbol, bool) {
	syms, err := s.Symbols()
	if err != nil || i < 0 || i >= len(syms) {
		return Symbol{}, false
	}
	return syms[i], true
}

// Lookup returns the first symbol named name.
func (s *SymbolTable) Lookup(name string) (Symbol, bool) {
	if _, err := s.Symbols(); err != nil {
		return Symbol{}, false
	}
	i, ok := s.byName[name]
	if !ok {
		return Symbol{}, false
	}
	return s.syms[i], true
}

func (s *SymbolTable) load() error {
	r := s.r
	mark := r.cur.Save()
	defer r.cur.Restore(mark)

	var strtab *models.SectionHeader
	if link := int(s.hdr.Link); link > 0 && link < len(r.headers) {
		strtab = &r.headers[link]
	}
	entSize := int64(s.hdr.EntSize)
	if entSize == 0 {
		return models.NewDecodeError(s.hdr.Name, s.hdr.Offset, "zero symbol entry size")
	}
	macho := r.format == models.FormatMachO || r.format == models.FormatFat
	wide := r.Class() == stream.Class64
	count := s.hdr.Size / entSize
	syms := make([]Symbol, 0, count)
	names := make([]uint32, 0, count)
	for i := int64(0); i < count; i++ {
		if err := r.cur.Seek(s.hdr.Offset + i*entSize); err != nil {
			return models.NewDecodeError(s.hdr.Name, s.hdr.Offset+i*entSize, "symbol %d out of range", i)
		}
		var sym Symbol
		var name uint32
		switch {
		case macho && wide:
			var n nlist64
			if err := r.cur.Unpack(&n); err != nil {
				return err
			}
			name, sym = n.Strx, Symbol{Value: n.Value, Type: n.Type, Section: uint16(n.Sect)}
		case macho:
			var n nlist32
			if err := r.cur.Unpack(&n); err != nil {
				return err
			}
			name, sym = n.Strx, Symbol{Value: uint64(n.Value), Type: n.Type, Section: uint16(n.Sect)}
		case wide:
			var e elfSym64
			if err := r.cur.Unpack(&e); err != nil {
				return err
			}
			name, sym = e.Name, Symbol{Value: e.Value, Size: e.Size, Type: e.Info & 0xf, Bind: e.Info >> 4, Section: e.Shndx}
		default:
			var e elfSym32
			if err := r.cur.Unpack(&e); err != nil {
				return err
			}
			name, sym = e.Name, Symbol{Value: uint64(e.Value), Size: uint64(e.Size), Type: e.Info & 0xf, Bind: e.Info >> 4, Section: e.Shndx}
		}
		syms = append(syms, sym)
		names = append(names, name)
	}
	s.byName = make(map[string]int)
	for i := range syms {
		if strtab == nil || names[i] == 0 || int64(names[i]) >= strtab.Size {
			continue
		}
		name, err := r.stringAt(strtab.Offset + int64(names[i]))
		if err != nil {
			r.log.Warn().Err(err).Str("section", s.hdr.Name).Int("symbol", i).Msg("bad symbol name")
			continue
		}
		syms[i].Name = name
		if _, ok := s.byName[name]; !ok {
			s.byName[name] = i
		}
	}
	s.syms, s.loaded = syms, true
	return nil
}
