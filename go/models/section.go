package models

import "fmt"

type Format int

const (
	FormatUnknown Format = iota
	FormatELF
	FormatPE
	FormatCOFF
	FormatImport
	FormatMachO
	FormatFat
	FormatArchive
)

var formatNames = map[Format]string{
	FormatUnknown: "unknown",
	FormatELF:     "ELF",
	FormatPE:      "PE",
	FormatCOFF:    "COFF",
	FormatImport:  "COFF import stub",
	FormatMachO:   "Mach-O",
	FormatFat:     "Mach-O fat",
	FormatArchive: "ar archive",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// SectionHeader is the normalized description of one container section.
// Link and Info keep their ELF meaning; other formats reuse them for
// format-specific cross references (Mach-O: symbol count for .symtab).
type SectionHeader struct {
	Name   string `yaml:"name"`
	Offset int64  `yaml:"offset"`
	Size   int64  `yaml:"size"`
	Addr   uint64 `yaml:"addr"`
	Type   uint32 `yaml:"type"`
	Flags  uint64 `yaml:"flags"`
	Link   uint32 `yaml:"link"`
	Info   uint32 `yaml:"info"`
	// EntSize is the fixed entry size for table sections, zero otherwise.
	EntSize uint64 `yaml:"entsize,omitempty"`
}

func (s *SectionHeader) String() string {
	return fmt.Sprintf("%-24s off=0x%08x size=0x%08x addr=0x%x type=0x%x flags=0x%x",
		s.Name, s.Offset, s.Size, s.Addr, s.Type, s.Flags)
}

// ProgHeader is an ELF program header.
type ProgHeader struct {
	Type   uint32
	Flags  uint32
	Offset int64
	Vaddr  uint64
	Filesz uint64
	Memsz  uint64
}

// Contains reports whether the virtual address falls inside the file-backed
// part of the segment.
func (p *ProgHeader) Contains(vaddr uint64) bool {
	return p.Vaddr <= vaddr && vaddr < p.Vaddr+p.Filesz
}

// SectionKind tags every lazily decoded section variant.
type SectionKind int

const (
	KindStringTable SectionKind = iota
	KindAbbrev
	KindLine
	KindAranges
	KindInfo
	KindPubNames
	KindMacro
	KindSymbols
	KindRelocations
	KindOther
)

var kindNames = []string{"strtab", "abbrev", "line", "aranges", "info", "pubnames", "macro", "symtab", "reloc", "other"}

func (k SectionKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("SectionKind(%d)", int(k))
}

// Section is a decoder bound to one container section. Decoders are created
// at most once per section by the owning reader.
type Section interface {
	Kind() SectionKind
	Header() *SectionHeader
}
