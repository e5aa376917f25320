package loader

import (
	"bytes"
	"io"
)

func getMagic(r io.ReaderAt) []byte {
	ret := make([]byte, 8)
	n, _ := r.ReadAt(ret, 0)
	return ret[:n]
}

func hasMagic(magic []byte, check ...[]byte) bool {
	for _, c := range check {
		if bytes.HasPrefix(magic, c) {
			return true
		}
	}
	return false
}

// stringsIn returns the non-empty NUL-terminated strings in [off, end). The
// cursor is restored afterwards.
func (r *Reader) stringsIn(off, end int64) []string {
	mark := r.cur.Save()
	defer r.cur.Restore(mark)
	if end > r.cur.Len() {
		end = r.cur.Len()
	}
	if err := r.cur.Seek(off); err != nil {
		return nil
	}
	var out []string
	for r.cur.Position() < end {
		s, err := r.cur.CString()
		if err != nil {
			break
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
