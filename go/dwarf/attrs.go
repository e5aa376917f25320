package dwarf

import (
	"debug/dwarf"
	"fmt"
)

// Language is a DW_LANG source language code.
type Language uint16

var languageNames = map[Language]string{
	0x01:   "C89",
	0x02:   "C",
	0x03:   "Ada83",
	0x04:   "C_plus_plus",
	0x05:   "Cobol74",
	0x06:   "Cobol85",
	0x07:   "Fortran77",
	0x08:   "Fortran90",
	0x09:   "Pascal83",
	0x0a:   "Modula2",
	0x0b:   "Java",
	0x0c:   "C99",
	0x0d:   "Ada95",
	0x0e:   "Fortran95",
	0x0f:   "PLI",
	0x10:   "ObjC",
	0x11:   "ObjC_plus_plus",
	0x12:   "UPC",
	0x13:   "D",
	0x14:   "Python",
	0x15:   "OpenCL",
	0x16:   "Go",
	0x17:   "Modula3",
	0x18:   "Haskell",
	0x19:   "C_plus_plus_03",
	0x1a:   "C_plus_plus_11",
	0x1b:   "OCaml",
	0x1c:   "Rust",
	0x1d:   "C11",
	0x1e:   "Swift",
	0x1f:   "Julia",
	0x20:   "Dylan",
	0x21:   "C_plus_plus_14",
	0x22:   "Fortran03",
	0x23:   "Fortran08",
	0x24:   "RenderScript",
	0x25:   "BLISS",
	0x8001: "Mips_Assembler",
}

func (l Language) String() string {
	if s, ok := languageNames[l]; ok {
		return s
	}
	return fmt.Sprintf("Language(0x%x)", uint16(l))
}

// Encoding is a DW_ATE base type encoding.
type Encoding uint8

var encodingNames = map[Encoding]string{
	0x01: "address",
	0x02: "boolean",
	0x03: "complex_float",
	0x04: "float",
	0x05: "signed",
	0x06: "signed_char",
	0x07: "unsigned",
	0x08: "unsigned_char",
	0x09: "imaginary_float",
	0x0a: "packed_decimal",
	0x0b: "numeric_string",
	0x0c: "edited",
	0x0d: "signed_fixed",
	0x0e: "unsigned_fixed",
	0x0f: "decimal_float",
	0x10: "UTF",
	0x11: "UCS",
	0x12: "ASCII",
}

func (e Encoding) String() string {
	if s, ok := encodingNames[e]; ok {
		return s
	}
	return fmt.Sprintf("Encoding(0x%x)", uint8(e))
}

// postProcess maps the raw value of a few well-known attributes. Codes
// without a name are returned unchanged.
func postProcess(attr dwarf.Attr, v Value) Value {
	if v.Kind != KindInt {
		return v
	}
	switch attr {
	case dwarf.AttrLanguage:
		if s, ok := languageNames[Language(v.Int)]; ok && v.Int >= 0 && v.Int <= 0xffff {
			v.Name = s
		}
	case dwarf.AttrEncoding:
		if s, ok := encodingNames[Encoding(v.Int)]; ok && v.Int >= 0 && v.Int <= 0xff {
			v.Name = s
		}
	case dwarf.AttrDeclLine, dwarf.AttrDeclColumn, dwarf.AttrCallLine, dwarf.AttrCallColumn:
		// line numbers are unsigned 32-bit whatever constant form encodes them
		if v.Int < 0 {
			v.Int = 0
		}
		v.Int = int64(uint32(v.Int))
	}
	return v
}
