package batch

import (
	"log"
	"runtime"
)

// DefaultMemoryFraction is the share of total RAM the workers may use.
const DefaultMemoryFraction = 0.75

// FileMemory estimates the peak memory of converting one NEF: the 16-bit
// sample buffer of the full-resolution image plus an RGBA preview of it.
func FileMemory(width, height, chans int) int64 {
	return int64(width) * int64(height) * int64(chans*2+4)
}

// LimitConcurrency lowers requested so that workers*perFile stays within
// fraction of total system RAM minus the current Go heap. It returns
// requested unchanged when RAM cannot be detected, and never less than 1.
func LimitConcurrency(requested int, perFile int64, fraction float64, verbose bool) int {
	totalRAM, err := totalSystemRAM()
	if err != nil {
		if verbose {
			log.Printf("Cannot detect system RAM: %v; using %d workers", err, requested)
		}
		return max(requested, 1)
	}
	return limitWorkers(requested, perFile, totalRAM, fraction, verbose)
}

func limitWorkers(requested int, perFile int64, totalRAM uint64, fraction float64, verbose bool) int {
	requested = max(requested, 1)
	if perFile <= 0 {
		return requested
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	budget := int64(float64(totalRAM)*fraction) - int64(m.Sys)
	workers := int(budget / perFile)
	if workers >= requested {
		return requested
	}
	workers = max(workers, 1)
	if verbose {
		log.Printf("Limiting workers to %d (%.1f GB RAM, %.0f MB per file)",
			workers, float64(totalRAM)/(1024*1024*1024), float64(perFile)/(1024*1024))
	}
	return workers
}
