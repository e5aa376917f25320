package dwarf

import (
	"debug/dwarf"
	"fmt"

	"github.com/pkg/errors"

	"github.com/lunixbochs/objdwarf/go/stream"
)

// Value is one decoded attribute value. Which fields are set depends on
// Kind; see the Kind constants.
type Value struct {
	Form  Form
	Kind  Kind
	Int   int64
	Flag  bool
	Block []byte
	Str   string
	// Name is the symbolic meaning of Int for enumerated attributes such as
	// DW_AT_language.
	Name string
}

func (v Value) Uint() uint64 { return uint64(v.Int) }

func (v Value) String() string {
	switch v.Kind {
	case KindFlag:
		return fmt.Sprint(v.Flag)
	case KindString:
		return v.Str
	case KindBlock:
		if v.Form == FormAddr {
			return fmt.Sprintf("0x%x", v.Uint())
		}
		return fmt.Sprintf("% x", v.Block)
	case KindOffset, KindRef:
		return fmt.Sprintf("<0x%x>", v.Uint())
	}
	if v.Name != "" {
		return v.Name
	}
	return fmt.Sprint(v.Int)
}

var dataWidth = map[Form]int{FormData1: 1, FormData2: 2, FormData4: 4, FormData8: 8}

// AttrSpec is one attribute of an abbreviation.
type AttrSpec struct {
	Attr dwarf.Attr
	Form Form
	// ImplicitConst is the value of a DW_FORM_implicit_const attribute,
	// stored in the abbreviation rather than in the entry.
	ImplicitConst int64
}

// assemble decodes a multi-byte field in the container byte order.
func (d *Reader) assemble(b []byte) uint64 {
	var v uint64
	if d.Order() == stream.BigEndian {
		for _, x := range b {
			v = v<<8 | uint64(x)
		}
	} else {
		for i := len(b) - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
	}
	return v
}

// ReadForm decodes one value of the given form at the cursor, using the
// encoding set by EnterUnit or SetContext.
func (d *Reader) ReadForm(form Form) (Value, error) {
	c := d.Cursor()
	start := c.Position()
	v, err := d.readForm(form, start)
	if err != nil {
		return Value{}, errors.WithMessagef(err, "reading %s", form)
	}
	return v, nil
}

func (d *Reader) readForm(form Form, start int64) (Value, error) {
	c := d.Cursor()
	v := Value{Form: form}
	var err error
	var u uint64
	switch form {
	case FormAddr:
		v.Kind = KindBlock
		if v.Block, err = c.Bytes(d.ctx.AddrSize); err != nil {
			return v, err
		}
		u, err = d.relocate(start, d.assemble(v.Block))
		v.Int = int64(u)

	case FormBlock1, FormBlock2, FormBlock4, FormBlock, FormExprloc:
		v.Kind = KindBlock
		switch form {
		case FormBlock1:
			u, err = c.Uint(1)
		case FormBlock2:
			u, err = c.Uint(2)
		case FormBlock4:
			u, err = c.Uint(4)
		default:
			u, err = c.ULEB128()
		}
		if err != nil {
			return v, err
		}
		if u > uint64(c.Len()-c.Position()) {
			return v, d.decodeError(start, "%s length 0x%x runs past end of file", form, u)
		}
		v.Block, err = c.Bytes(int(u))

	case FormData1, FormData2, FormData4, FormData8:
		v.Kind = KindInt
		u, err = c.Uint(dataWidth[form])
		v.Int = int64(u)

	case FormData16:
		v.Kind = KindBlock
		v.Block, err = c.Bytes(16)

	case FormSdata:
		v.Kind = KindInt
		v.Int, err = c.SLEB128()

	case FormUdata:
		v.Kind = KindInt
		u, err = c.ULEB128()
		v.Int = int64(u)

	case FormString:
		v.Kind = KindString
		v.Str, err = c.CString()

	case FormStrp, FormLineStrp:
		v.Kind = KindString
		if u, err = d.offset(d.ctx.Dwarf64); err != nil {
			return v, err
		}
		v.Int = int64(u)
		table := d.str
		if form == FormLineStrp {
			if table, err = d.LineStrings(); err != nil {
				return v, err
			}
		}
		if table == nil {
			return v, d.decodeError(start, "%s offset 0x%x without a string table", form, u)
		}
		v.Str, err = table.String(u)

	case FormStrpSup, FormGNUStrpAlt:
		v.Kind = KindOffset
		u, err = c.Offset(d.ctx.Dwarf64)
		v.Int = int64(u)

	case FormSecOffset:
		v.Kind = KindOffset
		u, err = d.offset(d.ctx.Dwarf64)
		v.Int = int64(u)

	case FormRefAddr:
		v.Kind = KindRef
		if d.ctx.Version <= 2 {
			u, err = c.Uint(d.ctx.AddrSize)
		} else {
			u, err = d.offset(d.ctx.Dwarf64)
		}
		v.Int = int64(u)

	case FormRef1, FormRef2, FormRef4, FormRef8, FormRefUdata, FormRefSup4, FormRefSup8, FormGNURefAlt:
		v.Kind = KindRef
		switch form {
		case FormRef1:
			u, err = c.Uint(1)
		case FormRef2:
			u, err = c.Uint(2)
		case FormRef4, FormRefSup4:
			u, err = c.Uint(4)
		case FormRef8, FormRefSup8:
			u, err = c.Uint(8)
		case FormRefUdata:
			u, err = c.ULEB128()
		default:
			u, err = c.Offset(d.ctx.Dwarf64)
		}
		v.Int = int64(u)

	case FormRefSig8:
		v.Kind = KindInt
		u, err = c.U64()
		v.Int = int64(u)

	case FormFlag:
		v.Kind = KindFlag
		v.Flag, err = c.Bool()

	case FormFlagPresent:
		v.Kind = KindFlag
		v.Flag = true

	case FormStrx, FormAddrx, FormLoclistx, FormRnglistx, FormGNUAddrIndex, FormGNUStrIndex:
		v.Kind = KindInt
		u, err = c.ULEB128()
		v.Int = int64(u)

	case FormStrx1, FormStrx2, FormStrx3, FormStrx4:
		v.Kind = KindInt
		u, err = c.Uint(int(form-FormStrx1) + 1)
		v.Int = int64(u)

	case FormAddrx1, FormAddrx2, FormAddrx3, FormAddrx4:
		v.Kind = KindInt
		u, err = c.Uint(int(form-FormAddrx1) + 1)
		v.Int = int64(u)

	case FormIndirect:
		if u, err = c.ULEB128(); err != nil {
			return v, err
		}
		actual := Form(u)
		if actual == FormIndirect || actual == FormImplicitConst {
			return v, d.decodeError(start, "indirect form resolves to %s", actual)
		}
		return d.readForm(actual, c.Position())

	case FormImplicitConst:
		return v, d.decodeError(start, "%s has no value outside an abbreviation", form)

	default:
		return v, d.decodeError(start, "unknown form %s", form)
	}
	return v, err
}

// ReadAttrValue decodes the value of one abbreviation attribute and maps
// enumerated attributes to their names.
func (d *Reader) ReadAttrValue(spec AttrSpec) (Value, error) {
	if spec.Form == FormImplicitConst {
		return postProcess(spec.Attr, Value{Form: spec.Form, Kind: KindInt, Int: spec.ImplicitConst}), nil
	}
	v, err := d.ReadForm(spec.Form)
	if err != nil {
		return v, errors.WithMessagef(err, "attribute %s", spec.Attr)
	}
	return postProcess(spec.Attr, v), nil
}
