//go:build unix

package tiff

import (
	"os"
	"syscall"
)

// mapFile maps the whole of f read-only. The file can be closed once the
// mapping exists.
func mapFile(f *os.File, size int64) ([]byte, bool, error) {
	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_PRIVATE)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// unmapFile releases a mapping created by mapFile.
func unmapFile(data []byte) error {
	return syscall.Munmap(data)
}
