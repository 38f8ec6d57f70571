//go:build !unix

package tiff

import (
	"io"
	"os"
)

// mapFile reads the whole file into memory on platforms without mmap.
func mapFile(f *os.File, size int64) ([]byte, bool, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, false, err
	}
	return data, false, nil
}

// unmapFile is a no-op; mapFile never maps on these platforms.
func unmapFile(data []byte) error {
	return nil
}
