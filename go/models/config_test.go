package models

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
}

func symlink(t *testing.T, target, path string) {
	t.Helper()
	if err := os.Symlink(target, path); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
}

func TestPrefixPath(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "etc/ld.so.conf"))
	var none *Config
	if p := none.PrefixPath("/etc/ld.so.conf", false); p != "/etc/ld.so.conf" {
		t.Fatalf("nil config: %q", p)
	}
	c := &Config{LoadPrefix: root}
	if p := c.PrefixPath("/etc/ld.so.conf", false); p != filepath.Join(root, "etc/ld.so.conf") {
		t.Fatalf("existing file: %q", p)
	}
	if p := c.PrefixPath("/etc/objdwarf-missing", false); p != "/etc/objdwarf-missing" {
		t.Fatalf("missing file: %q", p)
	}
	if p := c.PrefixPath("/etc/objdwarf-missing", true); p != filepath.Join(root, "etc/objdwarf-missing") {
		t.Fatalf("forced: %q", p)
	}
}

func TestResolveLib(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "opt/lib/libodtest.so.6.1"))
	symlink(t, "libodtest.so.6.1", filepath.Join(root, "opt/lib/libodtest.so.6"))
	touch(t, filepath.Join(root, "usr/lib/libodreal.so.2"))
	symlink(t, "/usr/lib/libodreal.so.2", filepath.Join(root, "opt/lib/libodlink.so"))

	app := t.TempDir()
	origin := filepath.Join(app, "bin")
	touch(t, filepath.Join(app, "lib/libodapp.so"))

	c := &Config{LoadPrefix: root}
	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{"libodtest.so.6", []string{"/opt/lib"}, filepath.Join(root, "opt/lib/libodtest.so.6.1")},
		{"libodlink.so", []string{"/opt/lib"}, filepath.Join(root, "usr/lib/libodreal.so.2")},
		{"libodreal.so.2", nil, filepath.Join(root, "usr/lib/libodreal.so.2")},
		{"libodapp.so", []string{"$ORIGIN/../lib"}, filepath.Join(app, "lib/libodapp.so")},
		{"libodapp.so", []string{"@loader_path/../lib"}, filepath.Join(app, "lib/libodapp.so")},
		{"/opt/lib/libodtest.so.6.1", nil, filepath.Join(root, "opt/lib/libodtest.so.6.1")},
	}
	for _, test := range tests {
		got, ok := c.ResolveLib(test.name, test.paths, origin)
		if !ok || got != test.want {
			t.Fatalf("ResolveLib(%q, %v) = %q, %v; want %q", test.name, test.paths, got, ok, test.want)
		}
	}
	if p, ok := c.ResolveLib("libodmissing.so.1", []string{"/opt/lib"}, origin); ok {
		t.Fatalf("found a missing library at %q", p)
	}
}
