package ar

import (
	"github.com/lunixbochs/objdwarf/go/cmd"
	"github.com/lunixbochs/objdwarf/go/dwarf"
	"github.com/lunixbochs/objdwarf/go/loader"
)

type member struct {
	loader.Member `yaml:",inline"`
	Format        string `yaml:"format,omitempty"`
	Arch          string `yaml:"arch,omitempty"`
	Units         int    `yaml:"units,omitempty"`
}

func New() *cmd.ObjCmd {
	c := cmd.NewObjCmd("ar")
	var open *bool
	c.SetupFlags = func() error {
		open = c.Flags.BoolP("open", "o", false, "open every member and count its DWARF units")
		return nil
	}
	// inspect fills in what the member's own container says about it.
	// Members that are not objects are logged and left as listed.
	inspect := func(path string, m *member) {
		d, err := dwarf.OpenMember(path, m.Offset, m.Size, c.Options()...)
		if err != nil {
			c.Log.Warn().Err(err).Str("member", m.Name).Msg("skipping")
			return
		}
		defer d.Close()
		m.Format = d.Format().String()
		m.Arch = d.Arch()
		info, err := d.Info()
		if err != nil || info == nil {
			return
		}
		units, err := info.Units()
		if err != nil {
			c.Log.Warn().Err(err).Str("member", m.Name).Msg("bad .debug_info")
			return
		}
		m.Units = len(units)
	}
	c.RunFile = func(path string) error {
		list, err := loader.ReadArchive(path, c.Options()...)
		if err != nil {
			return err
		}
		members := make([]member, len(list))
		for i, m := range list {
			members[i].Member = m
			if *open {
				inspect(path, &members[i])
			}
		}
		if c.Config.YAML {
			return c.Emit(members)
		}
		c.Heading("%s: %d members", path, len(members))
		for _, m := range members {
			c.Printf("%-32s off=0x%08x size=0x%08x", m.Name, m.Offset, m.Size)
			if m.Format != "" {
				c.Printf(" %s %s units=%d", m.Format, m.Arch, m.Units)
			}
			c.Printf("\n")
		}
		return nil
	}
	return c
}

func Main(args []string) int { return New().Run(args) }

func init() { cmd.Register("ar", "list static archive members", Main) }
