// Package batch runs a conversion over many input files with a fixed pool
// of workers, one open file per worker.
package batch

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
)

// Config holds batch configuration.
type Config struct {
	Concurrency int
	Verbose     bool
	// Progress draws a progress bar on Out (os.Stderr when nil).
	Progress bool
	Label    string
	Out      io.Writer
}

// Stats holds batch statistics.
type Stats struct {
	Files      int64
	Failed     int64
	Outputs    int64
	TotalBytes int64
}

// Result is what processing one input produced.
type Result struct {
	Outputs int
	Bytes   int64
}

// Func processes one input file. It runs concurrently with other calls.
type Func func(path string) (Result, error)

// Run calls fn for every input. A failing input does not stop the batch;
// every failure is returned together once all inputs are done.
func Run(cfg Config, inputs []string, fn Func) (Stats, error) {
	if len(inputs) == 0 {
		return Stats{}, fmt.Errorf("no input files")
	}
	workers := cfg.Concurrency
	if workers <= 0 {
		workers = 1
	}
	workers = min(workers, len(inputs))

	var pb *progressBar
	if cfg.Progress {
		out := cfg.Out
		if out == nil {
			out = os.Stderr
		}
		label := cfg.Label
		if label == "" {
			label = "Converting"
		}
		pb = newProgressBar(out, label, int64(len(inputs)))
	}

	var files, failed, outputs, totalBytes atomic.Int64
	var (
		mu   sync.Mutex
		errs *multierror.Error
	)

	jobs := make(chan string, workers*2)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				res, err := fn(path)
				files.Add(1)
				if err != nil {
					failed.Add(1)
					mu.Lock()
					errs = multierror.Append(errs, fmt.Errorf("%s: %w", path, err))
					mu.Unlock()
					if cfg.Verbose {
						log.Printf("%s: %v", path, err)
					}
				} else {
					outputs.Add(int64(res.Outputs))
					totalBytes.Add(res.Bytes)
					if cfg.Verbose {
						log.Printf("%s: %d outputs, %d bytes", path, res.Outputs, res.Bytes)
					}
				}
				if pb != nil {
					pb.Increment(err != nil)
				}
			}
		}()
	}

	for _, path := range inputs {
		jobs <- path
	}
	close(jobs)
	wg.Wait()
	if pb != nil {
		pb.Finish()
	}

	stats := Stats{
		Files:      files.Load(),
		Failed:     failed.Load(),
		Outputs:    outputs.Load(),
		TotalBytes: totalBytes.Load(),
	}
	return stats, errs.ErrorOrNil()
}
