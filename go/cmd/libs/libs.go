package libs

import (
	"path/filepath"

	"github.com/lunixbochs/objdwarf/go/cmd"
	"github.com/lunixbochs/objdwarf/go/loader"
)

type dep struct {
	Name string `yaml:"name"`
	Path string `yaml:"path,omitempty"`
}

type report struct {
	File    string   `yaml:"file"`
	Deps    []dep    `yaml:"deps"`
	Paths   []string `yaml:"paths,omitempty"`
	Objects []string `yaml:"objects,omitempty"`
}

func New() *cmd.ObjCmd {
	c := cmd.NewObjCmd("libs")
	var resolve *bool
	c.SetupFlags = func() error {
		resolve = c.Flags.BoolP("resolve", "r", false, "look each dependency up in the search paths")
		return nil
	}
	c.RunFile = func(path string) error {
		r, err := loader.Open(path, c.Options()...)
		if err != nil {
			return err
		}
		defer r.Close()
		libs, err := r.SharedLibraries()
		if err != nil {
			return err
		}
		rep := &report{File: path, Paths: libs.Paths, Objects: r.ObjectFiles()}
		origin := filepath.Dir(path)
		for _, name := range libs.Deps {
			d := dep{Name: name}
			if *resolve {
				if p, ok := c.Config.ResolveLib(name, libs.Paths, origin); ok {
					d.Path = p
				} else {
					c.Log.Warn().Str("lib", name).Msg("not found")
				}
			}
			rep.Deps = append(rep.Deps, d)
		}
		if c.Config.YAML {
			return c.Emit(rep)
		}
		c.Heading("%s:", path)
		for _, d := range rep.Deps {
			if d.Path != "" {
				c.Printf("  %s => %s\n", d.Name, d.Path)
			} else {
				c.Printf("  %s\n", d.Name)
			}
		}
		for _, p := range rep.Paths {
			c.Printf("  search %s\n", p)
		}
		if len(rep.Objects) > 0 {
			c.Heading("objects")
			for _, o := range rep.Objects {
				c.Printf("  %s\n", o)
			}
		}
		return nil
	}
	return c
}

func Main(args []string) int { return New().Run(args) }

func init() { cmd.Register("libs", "list shared library dependencies", Main) }
