package loader

import (
	"debug/elf"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/lunixbochs/objdwarf/go/mmap"
	"github.com/lunixbochs/objdwarf/go/models"
	"github.com/lunixbochs/objdwarf/go/stream"
)

// LoaderBase holds the identification fields every container format fills
// in while its header is parsed.
type LoaderBase struct {
	format   models.Format
	arch     string
	bits     int
	machine  uint32
	fileType uint32
	entry    uint64
}

func (l *LoaderBase) Format() models.Format { return l.format }
func (l *LoaderBase) Arch() string          { return l.arch }
func (l *LoaderBase) Bits() int             { return l.bits }
func (l *LoaderBase) Machine() uint32       { return l.machine }
func (l *LoaderBase) FileType() uint32      { return l.fileType }
func (l *LoaderBase) Entry() uint64         { return l.entry }

// Factory builds the decoder for one section. It runs at most once per
// section, on first access.
type Factory func(r *Reader, hdr *models.SectionHeader) (models.Section, error)

type slotState int

const (
	unresolved slotState = iota
	resolving
	resolved
)

type slot struct {
	state slotState
	sec   models.Section
}

type options struct {
	factories map[string]Factory
	log       zerolog.Logger
	window    int
	config    *models.Config
}

type Option func(*options)

// WithFactories adds section decoders keyed by section name. Later tables
// override earlier ones.
func WithFactories(f map[string]Factory) Option {
	return func(o *options) {
		for k, v := range f {
			o.factories[k] = v
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithWindowSize(n int) Option {
	return func(o *options) { o.window = n }
}

func WithConfig(c *models.Config) Option {
	return func(o *options) {
		o.config = c
		o.window = c.Window()
	}
}

func buildOptions(opts []Option) *options {
	o := &options{
		factories: make(map[string]Factory),
		log:       zerolog.Nop(),
		config:    &models.Config{},
	}
	for k, v := range baseFactories {
		o.factories[k] = v
	}
	for _, fn := range opts {
		fn(o)
	}
	if o.window <= 0 {
		o.window = o.config.Window()
	}
	return o
}

var baseFactories = map[string]Factory{
	".symtab": newSymbolTable,
	".dynsym": newSymbolTable,
}

// typeFactory decodes unnamed ELF tables by section type.
func (r *Reader) typeFactory(h *models.SectionHeader) Factory {
	if r.format != models.FormatELF {
		return nil
	}
	switch elf.SectionType(h.Type) {
	case elf.SHT_SYMTAB, elf.SHT_DYNSYM:
		return newSymbolTable
	case elf.SHT_REL, elf.SHT_RELA:
		return NewRelocationTable
	}
	return nil
}

// Reader normalizes one ELF, PE, COFF or Mach-O container into a section
// table with lazily materialized section decoders. It is not safe for
// concurrent use.
type Reader struct {
	LoaderBase

	src    *mmap.Source
	cur    *stream.Cursor
	log    zerolog.Logger
	config *models.Config

	// base is the start of the parsed container inside src (fat slices)
	base int64

	headers   []models.SectionHeader
	progs     []models.ProgHeader
	index     map[string]int
	slots     []slot
	factories map[string]Factory

	libs    *models.SharedLibs
	objects []string

	// pending COFF names of the form /<offset>
	coffNames map[int]uint32
	coffStr   int64
}

var _ models.Container = (*Reader)(nil)

// Open maps and parses the container at path.
func Open(path string, opts ...Option) (*Reader, error) {
	return OpenMember(path, 0, -1, opts...)
}

// OpenMember parses the container stored in [shift, shift+length) of path,
// such as one member of a static archive.
func OpenMember(path string, shift, length int64, opts ...Option) (*Reader, error) {
	o := buildOptions(opts)
	src, err := mmap.OpenRange(path, shift, length, mmap.WithWindowSize(o.window), mmap.WithLogger(o.log))
	if err != nil {
		return nil, err
	}
	r, err := newReader(src, o)
	if err != nil {
		src.Close()
		return nil, errors.WithMessage(err, path)
	}
	return r, nil
}

// New parses the container in src. The Reader takes ownership of src, which
// is closed when parsing fails.
func New(src *mmap.Source, opts ...Option) (*Reader, error) {
	r, err := newReader(src, buildOptions(opts))
	if err != nil {
		src.Close()
		return nil, err
	}
	return r, nil
}

func newReader(src *mmap.Source, o *options) (*Reader, error) {
	r := &Reader{
		src:       src,
		cur:       stream.New(src),
		log:       o.log.With().Str("component", "loader").Logger(),
		config:    o.config,
		index:     make(map[string]int),
		factories: o.factories,
	}
	format, err := Sniff(src)
	if err != nil {
		return nil, err
	}
	r.format = format
	switch format {
	case models.FormatELF:
		err = r.parseELF()
	case models.FormatPE:
		err = r.parsePE()
	case models.FormatCOFF:
		err = r.parseCOFF(0, false)
	case models.FormatImport:
		err = r.parseImport()
	case models.FormatMachO, models.FormatFat:
		err = r.parseMachO()
	case models.FormatArchive:
		err = models.NewFormatError(format, "archive members must be opened individually")
	}
	if err != nil {
		return nil, err
	}
	r.slots = make([]slot, len(r.headers))
	r.log.Debug().Stringer("format", r.format).Int("sections", len(r.headers)).Msg("parsed container")
	return r, nil
}

// addSection appends a header and indexes its name. The first section with
// a given name wins.
func (r *Reader) addSection(h models.SectionHeader) int {
	i := len(r.headers)
	r.headers = append(r.headers, h)
	r.indexName(h.Name, i)
	return i
}

func (r *Reader) indexName(name string, i int) {
	if _, ok := r.index[name]; !ok && name != "" {
		r.index[name] = i
	}
}

func (r *Reader) Cursor() *stream.Cursor { return r.cur }
func (r *Reader) Source() *mmap.Source   { return r.src }
func (r *Reader) Logger() zerolog.Logger { return r.log }
func (r *Reader) Order() stream.Order    { return r.cur.Order() }
func (r *Reader) Class() stream.Class    { return r.cur.Class() }
func (r *Reader) AddrSize() int          { return r.cur.AddrSize() }
func (r *Reader) NumSections() int       { return len(r.headers) }

// Headers returns a copy of the section table.
func (r *Reader) Headers() []models.SectionHeader {
	return append([]models.SectionHeader(nil), r.headers...)
}

// Progs returns a copy of the ELF program headers.
func (r *Reader) Progs() []models.ProgHeader {
	return append([]models.ProgHeader(nil), r.progs...)
}

func (r *Reader) SectionHeader(i int) (*models.SectionHeader, bool) {
	if i < 0 || i >= len(r.headers) {
		return nil, false
	}
	h := r.headers[i]
	return &h, true
}

func (r *Reader) SectionIndex(name string) (int, bool) {
	i, ok := r.index[name]
	return i, ok
}

// Section returns the decoder for the named section, creating it on first
// access. Unknown or undecodable names return nil without an error.
func (r *Reader) Section(name string) (models.Section, error) {
	i, ok := r.index[name]
	if !ok {
		return nil, nil
	}
	return r.SectionAt(i)
}

// SectionAt is Section by index.
func (r *Reader) SectionAt(i int) (models.Section, error) {
	if i < 0 || i >= len(r.slots) {
		return nil, nil
	}
	s := &r.slots[i]
	switch s.state {
	case resolved:
		return s.sec, nil
	case resolving:
		return nil, errors.Wrapf(models.ErrSectionResolving, "section %q", r.headers[i].Name)
	}
	factory, ok := r.factories[r.headers[i].Name]
	if !ok {
		if factory = r.typeFactory(&r.headers[i]); factory == nil {
			return nil, nil
		}
	}
	s.state = resolving
	h := r.headers[i]
	sec, err := factory(r, &h)
	if err != nil {
		s.state = unresolved
		return nil, errors.WithMessagef(err, "section %q", h.Name)
	}
	s.sec, s.state = sec, resolved
	r.log.Debug().Str("section", h.Name).Stringer("kind", sec.Kind()).Msg("materialized section")
	return sec, nil
}

// SectionData reads the raw bytes of the named section.
func (r *Reader) SectionData(name string) ([]byte, error) {
	i, ok := r.index[name]
	if !ok {
		return nil, errors.Errorf("no section %q", name)
	}
	return r.ReadSection(&r.headers[i])
}

func (r *Reader) ReadSection(h *models.SectionHeader) ([]byte, error) {
	if r.format == models.FormatELF && h.Type == uint32(elf.SHT_NOBITS) {
		return nil, nil
	}
	if h.Offset < 0 || h.Size < 0 || h.Offset+h.Size > r.src.Len() {
		return nil, models.NewDecodeError(h.Name, h.Offset, "section extends past end of file")
	}
	p := make([]byte, h.Size)
	if _, err := r.src.ReadAt(p, h.Offset); err != nil {
		return nil, errors.Wrapf(err, "reading section %q", h.Name)
	}
	return p, nil
}

// SharedLibraries returns a copy of the dependency record.
func (r *Reader) SharedLibraries() (*models.SharedLibs, error) {
	if r.libs == nil {
		libs := &models.SharedLibs{}
		if r.format == models.FormatELF {
			if err := r.readDynamic(libs); err != nil {
				return nil, err
			}
		}
		r.libs = libs
	}
	return r.libs.Copy(), nil
}

// ObjectFiles lists object files and archive members that hold the debug
// information of a Mach-O binary linked without embedding it.
func (r *Reader) ObjectFiles() []string {
	return append([]string(nil), r.objects...)
}

// Close releases the mapped window and the file.
func (r *Reader) Close() error {
	return r.src.Close()
}
