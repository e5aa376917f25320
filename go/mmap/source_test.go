package mmap

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"github.com/lunixbochs/objdwarf/go/models"
)

func pattern(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i * 7)
	}
	return p
}

func tempFile(t *testing.T, data []byte) string {
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

type countingMapper struct {
	mapper
	mapped, released int
}

func (c *countingMapper) mapWindow(off int64, n int) ([]byte, func() error, error) {
	b, release, err := c.mapper.mapWindow(off, n)
	if err != nil {
		return nil, nil, err
	}
	c.mapped++
	return b, func() error {
		c.released++
		return release()
	}, nil
}

func TestSourceReadAcrossWindows(t *testing.T) {
	data := pattern(10000)
	src, err := Open(tempFile(t, data), WithWindowSize(64))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	got, err := io.ReadAll(src)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("windowed read does not match file contents")
	}
	if src.remaps < 2 {
		t.Fatalf("expected several remaps, got %d", src.remaps)
	}
}

func TestSourceRange(t *testing.T) {
	data := pattern(9000)
	src, err := OpenRange(tempFile(t, data), 4100, 100, WithWindowSize(16))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	if src.Len() != 100 {
		t.Fatalf("bad length %d", src.Len())
	}
	p := make([]byte, 10)
	if _, err := src.ReadAt(p, 90); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p, data[4190:4200]) {
		t.Fatalf("range read mismatch: %x", p)
	}
	if src.Position() != 0 {
		t.Fatal("ReadAt moved the cursor")
	}
	if _, err := OpenRange(tempFile(t, data), 8990, 100); !errors.Is(err, models.ErrOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
}

func TestSourceSeekBounds(t *testing.T) {
	src := NewReaderAt(bytes.NewReader(pattern(32)), 32, WithWindowSize(8))
	if err := src.Seek(33); !errors.Is(err, models.ErrOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if err := src.Seek(-1); err == nil {
		t.Fatal("negative seek accepted")
	}
	if err := src.Seek(32); err != nil {
		t.Fatal(err)
	}
	if n, err := src.Read(nil); n != 0 || err != nil {
		t.Fatalf("zero-length read at end: %d %v", n, err)
	}
	if _, err := src.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestSourceLazySeek(t *testing.T) {
	data := pattern(4096)
	cm := &countingMapper{mapper: &heapMapper{r: bytes.NewReader(data)}}
	src := newSource(cm, 4096, []Option{WithWindowSize(64)})
	for _, pos := range []int64{100, 2000, 3000, 50} {
		if err := src.Seek(pos); err != nil {
			t.Fatal(err)
		}
	}
	if cm.mapped != 0 {
		t.Fatal("seek mapped a window")
	}
	if src.Position() != 50 {
		t.Fatalf("bad position %d", src.Position())
	}
	var b [1]byte
	if _, err := src.Read(b[:]); err != nil {
		t.Fatal(err)
	}
	if b[0] != data[50] || cm.mapped != 1 {
		t.Fatalf("got %x after %d maps", b[0], cm.mapped)
	}
}

func TestSourceReleasesEveryWindow(t *testing.T) {
	cm := &countingMapper{mapper: &heapMapper{r: bytes.NewReader(pattern(1024))}}
	src := newSource(cm, 1024, []Option{WithWindowSize(16)})
	for pos := int64(0); pos < 1024; pos += 100 {
		if err := src.Seek(pos); err != nil {
			t.Fatal(err)
		}
		if src.Remaining() != 0 {
			continue
		}
		var b [4]byte
		if _, err := src.Read(b[:]); err != nil {
			t.Fatal(err)
		}
	}
	src.Close()
	src.Close()
	if cm.mapped == 0 || cm.mapped != cm.released {
		t.Fatalf("mapped %d windows, released %d", cm.mapped, cm.released)
	}
}

func TestSourceBuffer(t *testing.T) {
	data := pattern(256)
	src := NewReaderAt(bytes.NewReader(data), 256, WithWindowSize(32))
	if src.Remaining() != 0 || src.Buffer() != nil {
		t.Fatal("window mapped before first read")
	}
	var b [1]byte
	src.Read(b[:])
	rem := src.Remaining()
	if rem == 0 || !bytes.Equal(src.Buffer(), data[1:1+rem]) {
		t.Fatalf("buffer does not follow cursor (remaining %d)", rem)
	}
	src.Advance(rem)
	if src.Remaining() != 0 || src.Position() != int64(1+rem) {
		t.Fatalf("advance left cursor at %d", src.Position())
	}
}
