//go:build !unix

package mmap

import "os"

func openMapper(f *os.File, base int64) mapper {
	return &heapMapper{r: f, base: base, c: f}
}
