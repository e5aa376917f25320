package loader

import (
	"encoding/binary"
	"io"

	"github.com/lunixbochs/objdwarf/go/models"
)

var (
	elfMagic     = []byte{0x7f, 'E', 'L', 'F'}
	peMagic      = []byte{'M', 'Z'}
	importMagic  = []byte{0x00, 0x00, 0xff, 0xff}
	archiveMagic = []byte("!<arch>\n")
	fatMagic     = []byte{0xca, 0xfe, 0xba, 0xbe}
	fat64Magic   = []byte{0xca, 0xfe, 0xba, 0xbf}
)

var machoMagics = [][]byte{
	{0xfe, 0xed, 0xfa, 0xce},
	{0xfe, 0xed, 0xfa, 0xcf},
	{0xce, 0xfa, 0xed, 0xfe},
	{0xcf, 0xfa, 0xed, 0xfe},
}

// COFF object files have no magic of their own; they start with the
// machine id.
var coffMachines = map[uint16]string{
	0x014c: "x86",
	0x8664: "x86_64",
	0x01c0: "arm",
	0x01c4: "armnt",
	0xaa64: "arm64",
	0x0200: "ia64",
}

func MatchElf(r io.ReaderAt) bool     { return hasMagic(getMagic(r), elfMagic) }
func MatchPE(r io.ReaderAt) bool      { return hasMagic(getMagic(r), peMagic) }
func MatchImport(r io.ReaderAt) bool  { return hasMagic(getMagic(r), importMagic) }
func MatchArchive(r io.ReaderAt) bool { return hasMagic(getMagic(r), archiveMagic) }
func MatchMachO(r io.ReaderAt) bool   { return hasMagic(getMagic(r), machoMagics...) }

// MatchFat rejects Java class files, which share the fat magic, by bounding
// the architecture count below the first class file version (45).
func MatchFat(r io.ReaderAt) bool {
	magic := getMagic(r)
	if !hasMagic(magic, fatMagic, fat64Magic) || len(magic) < 8 {
		return false
	}
	n := binary.BigEndian.Uint32(magic[4:8])
	return n > 0 && n < 20
}

func MatchCOFF(r io.ReaderAt) bool {
	magic := getMagic(r)
	if len(magic) < 2 {
		return false
	}
	_, ok := coffMachines[binary.LittleEndian.Uint16(magic)]
	return ok
}

// Sniff identifies the container format from its leading magic.
func Sniff(r io.ReaderAt) (models.Format, error) {
	switch {
	case MatchElf(r):
		return models.FormatELF, nil
	case MatchArchive(r):
		return models.FormatArchive, nil
	case MatchMachO(r):
		return models.FormatMachO, nil
	case MatchFat(r):
		return models.FormatFat, nil
	case MatchPE(r):
		return models.FormatPE, nil
	case MatchImport(r):
		return models.FormatImport, nil
	case MatchCOFF(r):
		return models.FormatCOFF, nil
	}
	return models.FormatUnknown, models.NewFormatError(models.FormatUnknown, "unrecognized magic %x", getMagic(r))
}
