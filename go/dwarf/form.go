package dwarf

import "fmt"

// Form is a DWARF attribute encoding.
type Form uint16

const (
	FormAddr          Form = 0x01
	FormBlock2        Form = 0x03
	FormBlock4        Form = 0x04
	FormData2         Form = 0x05
	FormData4         Form = 0x06
	FormData8         Form = 0x07
	FormString        Form = 0x08
	FormBlock         Form = 0x09
	FormBlock1        Form = 0x0a
	FormData1         Form = 0x0b
	FormFlag          Form = 0x0c
	FormSdata         Form = 0x0d
	FormStrp          Form = 0x0e
	FormUdata         Form = 0x0f
	FormRefAddr       Form = 0x10
	FormRef1          Form = 0x11
	FormRef2          Form = 0x12
	FormRef4          Form = 0x13
	FormRef8          Form = 0x14
	FormRefUdata      Form = 0x15
	FormIndirect      Form = 0x16
	FormSecOffset     Form = 0x17
	FormExprloc       Form = 0x18
	FormFlagPresent   Form = 0x19
	FormStrx          Form = 0x1a
	FormAddrx         Form = 0x1b
	FormRefSup4       Form = 0x1c
	FormStrpSup       Form = 0x1d
	FormData16        Form = 0x1e
	FormLineStrp      Form = 0x1f
	FormRefSig8       Form = 0x20
	FormImplicitConst Form = 0x21
	FormLoclistx      Form = 0x22
	FormRnglistx      Form = 0x23
	FormRefSup8       Form = 0x24
	FormStrx1         Form = 0x25
	FormStrx2         Form = 0x26
	FormStrx3         Form = 0x27
	FormStrx4         Form = 0x28
	FormAddrx1        Form = 0x29
	FormAddrx2        Form = 0x2a
	FormAddrx3        Form = 0x2b
	FormAddrx4        Form = 0x2c

	FormGNUAddrIndex Form = 0x1f01
	FormGNUStrIndex  Form = 0x1f02
	FormGNURefAlt    Form = 0x1f20
	FormGNUStrpAlt   Form = 0x1f21
)

var formNames = map[Form]string{
	FormAddr:          "addr",
	FormBlock2:        "block2",
	FormBlock4:        "block4",
	FormData2:         "data2",
	FormData4:         "data4",
	FormData8:         "data8",
	FormString:        "string",
	FormBlock:         "block",
	FormBlock1:        "block1",
	FormData1:         "data1",
	FormFlag:          "flag",
	FormSdata:         "sdata",
	FormStrp:          "strp",
	FormUdata:         "udata",
	FormRefAddr:       "ref_addr",
	FormRef1:          "ref1",
	FormRef2:          "ref2",
	FormRef4:          "ref4",
	FormRef8:          "ref8",
	FormRefUdata:      "ref_udata",
	FormIndirect:      "indirect",
	FormSecOffset:     "sec_offset",
	FormExprloc:       "exprloc",
	FormFlagPresent:   "flag_present",
	FormStrx:          "strx",
	FormAddrx:         "addrx",
	FormRefSup4:       "ref_sup4",
	FormStrpSup:       "strp_sup",
	FormData16:        "data16",
	FormLineStrp:      "line_strp",
	FormRefSig8:       "ref_sig8",
	FormImplicitConst: "implicit_const",
	FormLoclistx:      "loclistx",
	FormRnglistx:      "rnglistx",
	FormRefSup8:       "ref_sup8",
	FormStrx1:         "strx1",
	FormStrx2:         "strx2",
	FormStrx3:         "strx3",
	FormStrx4:         "strx4",
	FormAddrx1:        "addrx1",
	FormAddrx2:        "addrx2",
	FormAddrx3:        "addrx3",
	FormAddrx4:        "addrx4",
	FormGNUAddrIndex:  "GNU_addr_index",
	FormGNUStrIndex:   "GNU_str_index",
	FormGNURefAlt:     "GNU_ref_alt",
	FormGNUStrpAlt:    "GNU_strp_alt",
}

func (f Form) String() string {
	if s, ok := formNames[f]; ok {
		return "DW_FORM_" + s
	}
	return fmt.Sprintf("DW_FORM_0x%x", uint16(f))
}

// Kind is the type of a decoded attribute value.
type Kind int

const (
	// KindInt holds constants, LEB128 scalars, signatures and str/addr
	// indexes in Value.Int.
	KindInt Kind = iota
	KindFlag
	// KindBlock holds raw bytes in Value.Block. Addresses are blocks with
	// the decoded address also in Value.Int.
	KindBlock
	KindString
	// KindOffset is an offset into another section.
	KindOffset
	// KindRef is a reference to another entry. Unit-relative for ref1..8
	// and ref_udata, section-relative for ref_addr and the alt/sup forms.
	KindRef
)

var kindNames = []string{"int", "flag", "block", "string", "offset", "ref"}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}
