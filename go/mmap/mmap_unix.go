//go:build unix

package mmap

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type fileMapper struct {
	f    *os.File
	base int64
	page int64
}

func (m *fileMapper) mapWindow(off int64, n int) ([]byte, func() error, error) {
	if n == 0 {
		return nil, func() error { return nil }, nil
	}
	abs := m.base + off
	aligned := abs &^ (m.page - 1)
	delta := int(abs - aligned)
	b, err := unix.Mmap(int(m.f.Fd()), aligned, delta+n, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, errors.Wrap(err, "mmap")
	}
	return b[delta : delta+n], func() error { return unix.Munmap(b) }, nil
}

func (m *fileMapper) close() error {
	return m.f.Close()
}

func openMapper(f *os.File, base int64) mapper {
	return &fileMapper{f: f, base: base, page: int64(os.Getpagesize())}
}
