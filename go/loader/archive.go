package loader

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/lunixbochs/objdwarf/go/mmap"
	"github.com/lunixbochs/objdwarf/go/models"
	"github.com/lunixbochs/objdwarf/go/stream"
)

const arHeaderSize = 60

// Member is one file stored in a static archive. Offset and Size describe
// the member data, ready for OpenMember.
type Member struct {
	Name   string `yaml:"name"`
	Offset int64  `yaml:"offset"`
	Size   int64  `yaml:"size"`
}

type arHeader struct {
	Name  [16]byte
	Date  [12]byte
	UID   [6]byte
	GID   [6]byte
	Mode  [8]byte
	Size  [10]byte
	Magic [2]byte
}

func arField(p []byte) string {
	return strings.TrimRight(string(p), " ")
}

// ReadArchive lists the members of the ar archive at path. GNU long names
// ("//" table) and BSD "#1/<len>" names are resolved; symbol indexes are
// skipped.
func ReadArchive(path string, opts ...Option) ([]Member, error) {
	o := buildOptions(opts)
	src, err := mmap.Open(path, mmap.WithWindowSize(o.window), mmap.WithLogger(o.log))
	if err != nil {
		return nil, err
	}
	defer src.Close()
	members, err := readArchive(src)
	return members, errors.WithMessage(err, path)
}

func readArchive(src *mmap.Source) ([]Member, error) {
	if !MatchArchive(src) {
		return nil, models.NewFormatError(models.FormatArchive, "bad magic %x", getMagic(src))
	}
	c := stream.New(src)
	var members []Member
	var longNames []byte
	for pos := int64(len(archiveMagic)); pos+arHeaderSize <= c.Len(); {
		if err := c.Seek(pos); err != nil {
			return nil, err
		}
		var h arHeader
		if err := c.Unpack(&h); err != nil {
			return nil, err
		}
		if h.Magic != [2]byte{'`', '\n'} {
			return nil, models.NewDecodeError("archive", pos, "bad member header magic %q", h.Magic[:])
		}
		size, err := strconv.ParseInt(arField(h.Size[:]), 10, 64)
		if err != nil || size < 0 {
			return nil, models.NewDecodeError("archive", pos, "bad member size %q", h.Size[:])
		}
		data := pos + arHeaderSize
		if data+size > c.Len() {
			return nil, models.NewDecodeError("archive", pos, "member extends past end of file")
		}
		next := data + size + size&1

		name := arField(h.Name[:])
		switch {
		case name == "//":
			if longNames, err = c.Bytes(int(size)); err != nil {
				return nil, err
			}
			name = ""
		case name == "/" || name == "/SYM64/" || strings.HasPrefix(name, "__.SYMDEF"):
			name = ""
		case strings.HasPrefix(name, "#1/"):
			n, err := strconv.Atoi(name[3:])
			if err != nil || n < 0 || int64(n) > size {
				return nil, models.NewDecodeError("archive", pos, "bad BSD name %q", name)
			}
			if name, err = c.FixedString(n); err != nil {
				return nil, err
			}
			data += int64(n)
			size -= int64(n)
			if strings.HasPrefix(name, "__.SYMDEF") {
				name = ""
			}
		case len(name) > 1 && name[0] == '/':
			off, err := strconv.Atoi(name[1:])
			if err != nil || off < 0 || off >= len(longNames) {
				return nil, models.NewDecodeError("archive", pos, "bad long name reference %q", name)
			}
			name = strings.TrimSuffix(string(longNames[off:][:gnuNameLen(longNames[off:])]), "/")
		default:
			name = strings.TrimSuffix(name, "/")
		}
		if name != "" {
			members = append(members, Member{Name: name, Offset: data, Size: size})
		}
		pos = next
	}
	return members, nil
}

func gnuNameLen(p []byte) int {
	if i := bytes.IndexByte(p, '\n'); i >= 0 {
		return i
	}
	return len(p)
}
