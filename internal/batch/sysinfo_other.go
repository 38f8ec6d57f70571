//go:build !darwin && !linux

package batch

import "errors"

func totalSystemRAM() (uint64, error) {
	return 0, errors.New("RAM detection is not supported on this platform")
}
