package models

// Container is the format-independent view of an opened executable or
// object file.
type Container interface {
	Format() Format
	Arch() string
	Bits() int
	Machine() uint32
	FileType() uint32
	Entry() uint64
	Headers() []SectionHeader
	SharedLibraries() (*SharedLibs, error)
	ObjectFiles() []string
	Close() error
}
