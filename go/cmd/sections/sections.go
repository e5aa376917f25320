package sections

import (
	"github.com/pkg/errors"

	"github.com/lunixbochs/objdwarf/go/cmd"
	"github.com/lunixbochs/objdwarf/go/loader"
	"github.com/lunixbochs/objdwarf/go/models"
)

type report struct {
	File     string                 `yaml:"file"`
	Format   string                 `yaml:"format"`
	Arch     string                 `yaml:"arch"`
	Bits     int                    `yaml:"bits"`
	Machine  uint32                 `yaml:"machine"`
	Entry    uint64                 `yaml:"entry"`
	Sections []models.SectionHeader `yaml:"sections"`
	Symbols  []loader.Symbol        `yaml:"symbols,omitempty"`
}

func newReport(path string, c models.Container) *report {
	return &report{
		File:     path,
		Format:   c.Format().String(),
		Arch:     c.Arch(),
		Bits:     c.Bits(),
		Machine:  c.Machine(),
		Entry:    c.Entry(),
		Sections: c.Headers(),
	}
}

func New() *cmd.ObjCmd {
	c := cmd.NewObjCmd("sections")
	var symbols *bool
	c.SetupFlags = func() error {
		symbols = c.Flags.BoolP("symbols", "s", false, "also list the .symtab entries")
		return nil
	}
	c.RunFile = func(path string) error {
		r, err := loader.Open(path, c.Options()...)
		if err != nil {
			return err
		}
		defer r.Close()
		rep := newReport(path, r)
		if *symbols {
			if rep.Symbols, err = readSymbols(r); err != nil {
				return err
			}
		}
		if c.Config.YAML {
			return c.Emit(rep)
		}
		c.Heading("%s: %s %s %d-bit", path, rep.Format, rep.Arch, rep.Bits)
		c.Printf("entry 0x%x\n", rep.Entry)
		for i := range rep.Sections {
			c.Printf("[%2d] %s\n", i, rep.Sections[i].String())
		}
		if len(rep.Symbols) > 0 {
			c.Heading("symbols")
			for _, s := range rep.Symbols {
				if s.Name != "" {
					c.Printf("0x%016x %6d %s\n", s.Value, s.Size, s.Name)
				}
			}
		}
		return nil
	}
	return c
}

func readSymbols(r *loader.Reader) ([]loader.Symbol, error) {
	sec, err := r.Section(".symtab")
	if err != nil || sec == nil {
		return nil, err
	}
	tab, ok := sec.(*loader.SymbolTable)
	if !ok {
		return nil, errors.Errorf(".symtab decoded as %s", sec.Kind())
	}
	return tab.Symbols()
}

func Main(args []string) int { return New().Run(args) }

func init() { cmd.Register("sections", "list container sections and symbols", Main) }
