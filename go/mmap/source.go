// Package mmap provides a seekable byte source that maps a file through a
// bounded sliding window, so arbitrarily large files can be scanned at a
// fixed memory cost.
package mmap

import (
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/lunixbochs/objdwarf/go/models"
)

// minWindow keeps every fixed-width primitive (up to 8 bytes) addressable.
const minWindow = 8

// A mapper produces windows over the underlying data. release must be
// called exactly once per window.
type mapper interface {
	mapWindow(off int64, n int) (b []byte, release func() error, err error)
	close() error
}

type options struct {
	window int
	log    zerolog.Logger
}

type Option func(*options)

// WithWindowSize bounds the mapped window. Values below 8 are raised to 8.
func WithWindowSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.window = max(n, minWindow)
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

func buildOptions(opts []Option) options {
	o := options{window: models.DefaultWindowSize, log: zerolog.Nop()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Source is a positional reader over one mapped window of a file. It is not
// safe for concurrent use.
type Source struct {
	m      mapper
	length int64
	maxWin int
	log    zerolog.Logger

	win     []byte
	release func() error
	shift   int64

	pos     int64
	pending int64
	seeking bool
	closed  bool

	remaps int
}

func newSource(m mapper, length int64, opts []Option) *Source {
	o := buildOptions(opts)
	return &Source{
		m:      m,
		length: length,
		maxWin: o.window,
		log:    o.log.With().Str("component", "mmap").Logger(),
	}
}

// Len returns the length of the mapped file (or archive member).
func (s *Source) Len() int64 { return s.length }

// Seek records a new cursor position. The window is only moved by the next
// access, so consecutive seeks never remap.
func (s *Source) Seek(pos int64) error {
	if pos < 0 || pos > s.length {
		return errors.Wrapf(models.ErrOutOfRange, "seek to %d (length %d)", pos, s.length)
	}
	s.pending = pos
	s.seeking = true
	return nil
}

func (s *Source) sync() {
	if s.seeking {
		s.pos = s.pending
		s.seeking = false
	}
}

// Position returns the cursor position.
func (s *Source) Position() int64 {
	if s.seeking {
		return s.pending
	}
	return s.pos
}

func (s *Source) inWindow(pos int64) bool {
	return pos >= s.shift && pos < s.shift+int64(len(s.win))
}

// Remaining reports how many bytes are left in the current window from the
// cursor. Zero means the next access has to remap.
func (s *Source) Remaining() int {
	s.sync()
	if !s.inWindow(s.pos) {
		return 0
	}
	return int(s.shift + int64(len(s.win)) - s.pos)
}

// Buffer returns the window bytes from the cursor onward. The slice is only
// valid until the next remap.
func (s *Source) Buffer() []byte {
	if s.Remaining() == 0 {
		return nil
	}
	return s.win[s.pos-s.shift:]
}

// Advance moves the cursor forward after a caller consumed Buffer() bytes.
func (s *Source) Advance(n int) {
	s.sync()
	s.pos = min(s.pos+int64(n), s.length)
}

// Read copies bytes from the cursor, remapping as often as needed. It
// returns io.EOF only when the cursor is already at the end of the file.
func (s *Source) Read(p []byte) (int, error) {
	if s.closed {
		return 0, errors.New("mmap: source closed")
	}
	s.sync()
	if len(p) == 0 {
		return 0, nil
	}
	if s.pos >= s.length {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && s.pos < s.length {
		if !s.inWindow(s.pos) {
			if err := s.remap(s.pos); err != nil {
				return n, err
			}
		}
		c := copy(p[n:], s.win[s.pos-s.shift:])
		n += c
		s.pos += int64(c)
	}
	return n, nil
}

// ReadAt reads len(p) bytes at off without disturbing the cursor.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > s.length {
		return 0, errors.Wrapf(models.ErrOutOfRange, "read at %d (length %d)", off, s.length)
	}
	saved := s.Position()
	defer func() {
		s.pending = saved
		s.seeking = true
	}()
	s.pending = off
	s.seeking = true
	n, err := io.ReadFull(s, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

// remap recenters the window so that roughly half of it lies behind pos.
func (s *Source) remap(pos int64) error {
	s.unmap()
	shift := max(pos-int64(s.maxWin/2), 0)
	size := int(min(int64(s.maxWin), s.length-shift))
	b, release, err := s.m.mapWindow(shift, size)
	if err != nil {
		return errors.Wrapf(err, "mmap: mapping window at %d", shift)
	}
	s.win, s.release, s.shift = b, release, shift
	s.remaps++
	s.log.Trace().Int64("shift", shift).Int("size", size).Msg("remapped window")
	return nil
}

// unmap releases the current window. Failures are logged, never returned.
func (s *Source) unmap() {
	if s.release != nil {
		if err := s.release(); err != nil {
			s.log.Warn().Err(err).Int64("shift", s.shift).Msg("failed to release window")
		}
	}
	s.win, s.release = nil, nil
}

// Close releases the window and the underlying file. It is safe to call
// more than once.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.unmap()
	if err := s.m.close(); err != nil {
		s.log.Warn().Err(err).Msg("failed to close source")
	}
	return nil
}

// heapMapper fills windows from an io.ReaderAt.
type heapMapper struct {
	r    io.ReaderAt
	base int64
	c    io.Closer
}

func (h *heapMapper) mapWindow(off int64, n int) ([]byte, func() error, error) {
	b := make([]byte, n)
	got, err := h.r.ReadAt(b, h.base+off)
	if err != nil && !(err == io.EOF && got == n) {
		return nil, nil, err
	}
	return b, func() error { return nil }, nil
}

func (h *heapMapper) close() error {
	if h.c != nil {
		return h.c.Close()
	}
	return nil
}

// NewReaderAt returns a Source over size bytes of r, using heap windows.
func NewReaderAt(r io.ReaderAt, size int64, opts ...Option) *Source {
	return newSource(&heapMapper{r: r}, size, opts)
}
