package models

// SharedLibs lists the runtime dependencies of a container and the extra
// directories the dynamic loader searches for them.
type SharedLibs struct {
	Deps  []string `yaml:"deps"`
	Paths []string `yaml:"paths,omitempty"`
}

func (s *SharedLibs) AddDep(name string) {
	if name != "" {
		s.Deps = append(s.Deps, name)
	}
}

// AddPath appends a search path unless it was already recorded.
func (s *SharedLibs) AddPath(path string) {
	if path == "" {
		return
	}
	for _, p := range s.Paths {
		if p == path {
			return
		}
	}
	s.Paths = append(s.Paths, path)
}

func (s *SharedLibs) Copy() *SharedLibs {
	if s == nil {
		return &SharedLibs{}
	}
	return &SharedLibs{
		Deps:  append([]string(nil), s.Deps...),
		Paths: append([]string(nil), s.Paths...),
	}
}
