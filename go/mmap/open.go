package mmap

import (
	"os"

	"github.com/pkg/errors"

	"github.com/lunixbochs/objdwarf/go/models"
)

// Open maps the named file for reading.
func Open(path string, opts ...Option) (*Source, error) {
	return OpenRange(path, 0, -1, opts...)
}

// OpenRange maps length bytes of the named file starting at shift, as used
// for one member of a static archive. A negative length extends to the end
// of the file. Positions on the returned Source are relative to shift.
func OpenRange(path string, shift, length int64, opts ...Option) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.WithStack(err)
	}
	size := fi.Size()
	if length < 0 {
		length = size - shift
	}
	if shift < 0 || length < 0 || shift+length > size {
		f.Close()
		return nil, errors.Wrapf(models.ErrOutOfRange, "range [%d, %d) of %s (size %d)", shift, shift+length, path, size)
	}
	return newSource(openMapper(f, shift), length, opts), nil
}
