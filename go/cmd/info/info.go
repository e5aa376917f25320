package info

import (
	"strings"

	"github.com/lunixbochs/objdwarf/go/cmd"
	"github.com/lunixbochs/objdwarf/go/dwarf"
)

type field struct {
	Attr  string `yaml:"attr"`
	Form  string `yaml:"form"`
	Value string `yaml:"value"`
}

type entry struct {
	Offset int64   `yaml:"offset"`
	Depth  int     `yaml:"depth"`
	Tag    string  `yaml:"tag"`
	Fields []field `yaml:"fields,omitempty"`
}

type unit struct {
	Offset   int64   `yaml:"offset"`
	Version  int     `yaml:"version"`
	Type     uint8   `yaml:"type"`
	Dwarf64  bool    `yaml:"dwarf64,omitempty"`
	AddrSize int     `yaml:"addr_size"`
	Entries  []entry `yaml:"entries"`
}

func convert(u *dwarf.Unit, entries []*dwarf.Entry, maxDepth int) unit {
	out := unit{
		Offset:   u.Offset,
		Version:  u.Version,
		Type:     u.Type,
		Dwarf64:  u.Dwarf64,
		AddrSize: u.AddrSize,
	}
	for _, e := range entries {
		if maxDepth >= 0 && e.Depth > maxDepth {
			continue
		}
		ent := entry{Offset: e.Offset, Depth: e.Depth, Tag: e.Tag.String()}
		for _, f := range e.Fields {
			ent.Fields = append(ent.Fields, field{
				Attr:  f.Attr.String(),
				Form:  f.Value.Form.String(),
				Value: f.Value.String(),
			})
		}
		out.Entries = append(out.Entries, ent)
	}
	return out
}

func New() *cmd.ObjCmd {
	c := cmd.NewObjCmd("info")
	var depth *int
	c.SetupFlags = func() error {
		depth = c.Flags.IntP("depth", "d", -1, "only print entries up to this nesting depth (-1 prints all)")
		return nil
	}
	c.RunFile = func(path string) error {
		d, err := dwarf.Open(path, c.Options()...)
		if err != nil {
			return err
		}
		defer d.Close()
		sec, err := d.Info()
		if err != nil {
			return err
		}
		if sec == nil {
			c.Log.Warn().Str("path", path).Msg("no .debug_info section")
			return nil
		}
		units, err := sec.Units()
		if err != nil {
			return err
		}
		var out []unit
		for _, u := range units {
			entries, err := sec.Entries(u)
			if err != nil {
				return err
			}
			out = append(out, convert(u, entries, *depth))
		}
		if c.Config.YAML {
			return c.Emit(out)
		}
		for _, u := range out {
			c.Heading("unit <0x%x> version %d type %d addr_size %d", u.Offset, u.Version, u.Type, u.AddrSize)
			for _, e := range u.Entries {
				indent := strings.Repeat("  ", e.Depth)
				c.Printf("%s<0x%x> %s\n", indent, e.Offset, e.Tag)
				for _, f := range e.Fields {
					c.Printf("%s    %-24s %-16s %s\n", indent, f.Attr, f.Form, f.Value)
				}
			}
		}
		return nil
	}
	return c
}

func Main(args []string) int { return New().Run(args) }

func init() { cmd.Register("info", "dump DWARF debugging information entries", Main) }
