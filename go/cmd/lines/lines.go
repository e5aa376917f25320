package lines

import (
	stddwarf "debug/dwarf"
	"fmt"

	"github.com/lunixbochs/objdwarf/go/cmd"
	"github.com/lunixbochs/objdwarf/go/dwarf"
)

type row struct {
	Address uint64 `yaml:"address"`
	File    string `yaml:"file"`
	Line    int64  `yaml:"line"`
	Column  uint64 `yaml:"column,omitempty"`
	Stmt    bool   `yaml:"stmt,omitempty"`
	End     bool   `yaml:"end,omitempty"`
}

type program struct {
	Offset int64  `yaml:"offset"`
	Unit   string `yaml:"unit,omitempty"`
	Rows   []row  `yaml:"rows"`
}

func convert(p *dwarf.LineProgram, unit string) program {
	out := program{Offset: p.Header.Offset, Unit: unit}
	for _, r := range p.Rows {
		name, ok := p.Header.FileName(r.File)
		if !ok {
			name = fmt.Sprintf("file#%d", r.File)
		}
		out.Rows = append(out.Rows, row{
			Address: r.Address,
			File:    name,
			Line:    r.Line,
			Column:  r.Column,
			Stmt:    r.IsStmt,
			End:     r.EndSequence,
		})
	}
	return out
}

// programs decodes the line program named by DW_AT_stmt_list of every unit.
func programs(d *dwarf.Reader) ([]program, error) {
	info, err := d.Info()
	if err != nil || info == nil {
		return nil, err
	}
	line, err := d.Line()
	if err != nil || line == nil {
		return nil, err
	}
	units, err := info.Units()
	if err != nil {
		return nil, err
	}
	var out []program
	for _, u := range units {
		entries, err := info.Entries(u)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}
		stmt, ok := entries[0].Val(stddwarf.AttrStmtList)
		if !ok {
			continue
		}
		name := ""
		if v, ok := entries[0].Val(stddwarf.AttrName); ok {
			name = v.String()
		}
		p, err := line.Program(stmt.Uint())
		if err != nil {
			return nil, err
		}
		out = append(out, convert(p, name))
	}
	return out, nil
}

func New() *cmd.ObjCmd {
	c := cmd.NewObjCmd("lines")
	c.RunFile = func(path string) error {
		d, err := dwarf.Open(path, c.Options()...)
		if err != nil {
			return err
		}
		defer d.Close()
		progs, err := programs(d)
		if err != nil {
			return err
		}
		if c.Config.YAML {
			return c.Emit(progs)
		}
		for _, p := range progs {
			c.Heading("line program <0x%x> %s", p.Offset, p.Unit)
			for _, r := range p.Rows {
				mark := ""
				if r.End {
					mark = " end"
				}
				c.Printf("0x%016x %s:%d:%d%s\n", r.Address, r.File, r.Line, r.Column, mark)
			}
		}
		return nil
	}
	return c
}

func Main(args []string) int { return New().Run(args) }

func init() { cmd.Register("lines", "decode DWARF line number programs", Main) }
