package models

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultWindowSize bounds the mapped window of a source.
const DefaultWindowSize = 1 << 20

type Config struct {
	Color      bool
	LoadPrefix string
	Verbose    bool
	WindowSize int
	YAML       bool
}

func (c *Config) Window() int {
	if c == nil || c.WindowSize <= 0 {
		return DefaultWindowSize
	}
	return c.WindowSize
}

func (c *Config) resolveSymlink(path, target string, force bool) string {
	link, err := os.Lstat(target)
	if err == nil && link.Mode()&os.ModeSymlink != 0 {
		if linked, err := os.Readlink(target); err == nil {
			if !strings.HasPrefix(linked, "/") {
				return filepath.Join(filepath.Dir(target), linked)
			}
			return c.PrefixPath(linked, force)
		}
	}
	exists := !os.IsNotExist(err)
	if force || exists {
		return target
	}
	return path
}

// PrefixPath maps an absolute path into LoadPrefix when the prefixed file
// exists (or force is set).
func (c *Config) PrefixPath(path string, force bool) string {
	if c == nil || c.LoadPrefix == "" {
		return path
	}
	target := path
	if filepath.IsAbs(path) {
		target = filepath.Join(c.LoadPrefix, path)
	}
	return c.resolveSymlink(path, target, force)
}

// ResolveLib looks a shared library dependency up in the given search paths
// followed by the usual system directories. origin replaces $ORIGIN.
func (c *Config) ResolveLib(name string, paths []string, origin string) (string, bool) {
	if filepath.IsAbs(name) {
		p := c.PrefixPath(name, false)
		_, err := os.Stat(p)
		return p, err == nil
	}
	dirs := append(append([]string(nil), paths...), "/lib", "/usr/lib", "/lib64", "/usr/lib64", "/usr/local/lib")
	for _, dir := range dirs {
		dir = strings.ReplaceAll(dir, "$ORIGIN", origin)
		dir = strings.ReplaceAll(dir, "@loader_path", origin)
		p := c.PrefixPath(filepath.Join(dir, name), false)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}
