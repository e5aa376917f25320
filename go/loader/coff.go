package loader

import (
	"bytes"
	"debug/pe"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/lunixbochs/objdwarf/go/models"
	"github.com/lunixbochs/objdwarf/go/stream"
)

const (
	peHeaderPointer = 0x3c
	coffSymbolSize  = 18
	importPrefix    = "__IMPORT_DESCRIPTOR_"
)

var peSignature = []byte{'P', 'E', 0, 0}

type coffHeader struct {
	Machine         uint16
	NumSections     uint16
	TimeDateStamp   uint32
	SymOff          uint32
	NumSyms         uint32
	OptSize         uint16
	Characteristics uint16
}

type coffSection struct {
	Name            [8]byte
	VirtualSize     uint32
	VirtualAddress  uint32
	RawSize         uint32
	RawPtr          uint32
	RelocPtr        uint32
	LinePtr         uint32
	NumRelocs       uint16
	NumLines        uint16
	Characteristics uint32
}

type importHeader struct {
	Sig1, Sig2    uint16
	Version       uint16
	Machine       uint16
	TimeDateStamp uint32
	SizeOfData    uint32
	OrdinalHint   uint16
	Type          uint16
}

type importDescriptor struct {
	OriginalFirstThunk uint32
	TimeDateStamp      uint32
	ForwarderChain     uint32
	Name               uint32
	FirstThunk         uint32
}

// peDirectory is the import table data directory of a PE optional header.
type peDirectory struct {
	rva, size uint32
}

func (r *Reader) setCOFFMachine(machine uint16) {
	r.machine = uint32(machine)
	r.arch = coffMachines[machine]
	switch machine {
	case pe.IMAGE_FILE_MACHINE_AMD64, pe.IMAGE_FILE_MACHINE_ARM64, pe.IMAGE_FILE_MACHINE_IA64:
		r.cur.SetAddrSize(8)
		r.bits = 64
	default:
		r.cur.SetAddrSize(4)
		r.bits = 32
	}
}

// parsePE follows the DOS stub pointer to the PE signature and parses the
// COFF image behind it.
func (r *Reader) parsePE() error {
	c := r.cur
	if err := c.Seek(peHeaderPointer); err != nil {
		return models.NewFormatError(models.FormatPE, "truncated DOS header")
	}
	off, err := c.U32()
	if err != nil {
		return models.NewFormatError(models.FormatPE, "truncated DOS header")
	}
	if err := c.Seek(int64(off)); err != nil {
		return models.NewFormatError(models.FormatPE, "PE header pointer 0x%x out of range", off)
	}
	sig, err := c.Bytes(4)
	if err != nil || !bytes.Equal(sig, peSignature) {
		return models.NewFormatError(models.FormatPE, "bad PE signature %q", sig)
	}
	return r.parseCOFF(int64(off)+4, true)
}

// parseCOFF reads a COFF header at off. COFF is always little-endian.
func (r *Reader) parseCOFF(off int64, image bool) error {
	c := r.cur
	c.SetOrder(stream.LittleEndian)
	c.SetClass(stream.Class32)
	if err := c.Seek(off); err != nil {
		return err
	}
	var h coffHeader
	if err := c.Unpack(&h); err != nil {
		return err
	}
	r.setCOFFMachine(h.Machine)
	r.fileType = uint32(h.Characteristics)

	optStart := c.Position()
	var imports peDirectory
	if image && h.OptSize > 0 {
		var err error
		if imports, err = r.readOptionalHeader(); err != nil {
			return err
		}
	}
	if err := c.Seek(optStart + int64(h.OptSize)); err != nil {
		return errors.Wrap(err, "skipping optional header")
	}

	if h.SymOff != 0 {
		r.coffStr = int64(h.SymOff) + int64(h.NumSyms)*coffSymbolSize
	}
	for i := 0; i < int(h.NumSections); i++ {
		var sh coffSection
		if err := c.Unpack(&sh); err != nil {
			return errors.Wrapf(err, "section header %d", i)
		}
		name := stream.TrimNul(sh.Name[:])
		if strings.HasPrefix(name, "/") {
			if n, err := strconv.ParseUint(name[1:], 10, 32); err == nil {
				if r.coffNames == nil {
					r.coffNames = make(map[int]uint32)
				}
				r.coffNames[len(r.headers)] = uint32(n)
			}
		}
		size := sh.RawSize
		if image && sh.VirtualSize != 0 && sh.VirtualSize < size {
			size = sh.VirtualSize
		}
		r.headers = append(r.headers, models.SectionHeader{
			Name:   name,
			Offset: int64(sh.RawPtr),
			Size:   int64(size),
			Addr:   uint64(sh.VirtualAddress),
			Flags:  uint64(sh.Characteristics),
			Info:   uint32(sh.NumRelocs),
		})
	}
	r.patchCOFFNames()
	for i := range r.headers {
		r.indexName(r.headers[i].Name, i)
	}

	r.libs = &models.SharedLibs{}
	if imports.rva != 0 {
		r.readPEImports(imports)
	}
	if !image {
		r.scanImportDescriptors()
	}
	return nil
}

// readOptionalHeader records the entry point and address width and returns
// the import table directory.
func (r *Reader) readOptionalHeader() (peDirectory, error) {
	c := r.cur
	start := c.Position()
	magic, err := c.U16()
	if err != nil {
		return peDirectory{}, err
	}
	var numDirsAt, dirsAt int64
	switch magic {
	case 0x10b:
		numDirsAt, dirsAt = 92, 96
		c.SetAddrSize(4)
		r.bits = 32
	case 0x20b:
		numDirsAt, dirsAt = 108, 112
		c.SetClass(stream.Class64)
		r.bits = 64
	default:
		return peDirectory{}, models.NewFormatError(models.FormatPE, "bad optional header magic 0x%x", magic)
	}
	if err := c.Seek(start + 16); err != nil {
		return peDirectory{}, err
	}
	entry, err := c.U32()
	if err != nil {
		return peDirectory{}, err
	}
	r.entry = uint64(entry)
	if err := c.Seek(start + numDirsAt); err != nil {
		return peDirectory{}, err
	}
	numDirs, err := c.U32()
	if err != nil || numDirs <= pe.IMAGE_DIRECTORY_ENTRY_IMPORT {
		return peDirectory{}, err
	}
	if err := c.Seek(start + dirsAt + pe.IMAGE_DIRECTORY_ENTRY_IMPORT*8); err != nil {
		return peDirectory{}, err
	}
	var d peDirectory
	if d.rva, err = c.U32(); err != nil {
		return d, err
	}
	d.size, err = c.U32()
	return d, err
}

// patchCOFFNames replaces /<offset> section names with their string table
// entries. It runs once, after every section header has been read.
func (r *Reader) patchCOFFNames() {
	for i, off := range r.coffNames {
		if r.coffStr == 0 {
			break
		}
		name, err := r.stringAt(r.coffStr + int64(off))
		if err != nil {
			r.log.Warn().Err(err).Uint32("offset", off).Msg("bad COFF long section name")
			continue
		}
		r.headers[i].Name = name
	}
	r.coffNames = nil
}

func (r *Reader) rvaToOffset(rva uint32) (int64, bool) {
	for _, h := range r.headers {
		if uint64(rva) >= h.Addr && uint64(rva) < h.Addr+uint64(h.Size) {
			return h.Offset + int64(uint64(rva)-h.Addr), true
		}
	}
	return 0, false
}

// readPEImports walks the import directory and records every DLL name.
// Malformed entries end the walk but are not fatal.
func (r *Reader) readPEImports(dir peDirectory) {
	off, ok := r.rvaToOffset(dir.rva)
	if !ok {
		r.log.Warn().Uint32("rva", dir.rva).Msg("import directory outside of any section")
		return
	}
	mark := r.cur.Save()
	defer r.cur.Restore(mark)
	for ; ; off += 20 {
		if err := r.cur.Seek(off); err != nil {
			return
		}
		var d importDescriptor
		if err := r.cur.Unpack(&d); err != nil {
			r.log.Warn().Err(err).Msg("truncated import directory")
			return
		}
		if d.Name == 0 && d.FirstThunk == 0 && d.OriginalFirstThunk == 0 {
			return
		}
		nameOff, ok := r.rvaToOffset(d.Name)
		if !ok {
			continue
		}
		if name, err := r.stringAt(nameOff); err == nil {
			r.libs.AddDep(name)
		}
	}
}

// scanImportDescriptors finds __IMPORT_DESCRIPTOR_<lib> entries in the
// string table of an import library object.
func (r *Reader) scanImportDescriptors() {
	for _, s := range r.coffStrings() {
		if strings.HasPrefix(s, importPrefix) && len(s) > len(importPrefix) {
			r.libs.AddDep(s[len(importPrefix):] + ".dll")
		}
	}
}

// coffStrings returns every string of the COFF string table.
func (r *Reader) coffStrings() []string {
	if r.coffStr == 0 {
		return nil
	}
	mark := r.cur.Save()
	defer r.cur.Restore(mark)
	if err := r.cur.Seek(r.coffStr); err != nil {
		return nil
	}
	size, err := r.cur.U32()
	if err != nil || size < 4 || r.coffStr+int64(size) > r.cur.Len() {
		return nil
	}
	return r.stringsIn(r.coffStr+4, r.coffStr+int64(size))
}

// parseImport handles a short import library member: a fixed header
// followed by the imported symbol and DLL names.
func (r *Reader) parseImport() error {
	c := r.cur
	c.SetOrder(stream.LittleEndian)
	var h importHeader
	if err := c.Unpack(&h); err != nil {
		return err
	}
	r.setCOFFMachine(h.Machine)
	symbol, err := c.CString()
	if err != nil {
		return err
	}
	dll, err := c.CString()
	if err != nil {
		return err
	}
	r.libs = &models.SharedLibs{}
	r.libs.AddDep(dll)
	r.log.Debug().Str("symbol", symbol).Str("dll", dll).Msg("import stub")
	return nil
}
