package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/pspoerri/nefko/internal/batch"
	"github.com/pspoerri/nefko/internal/encode"
	"github.com/pspoerri/nefko/nef"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type options struct {
	format  string
	outDir  string
	images  string
	verify  bool
	verbose bool
	enc     encode.Encoder

	quality     int
	concurrency int
	cpuProfile  string
}

func main() {
	var (
		opts        options
		showVersion bool
	)

	flag.StringVar(&opts.format, "format", "png", "Output format: jpeg, png, webp, raw (zstd-compressed samples)")
	flag.IntVar(&opts.quality, "quality", 85, "JPEG/WebP quality 1-100")
	flag.IntVar(&opts.concurrency, "concurrency", runtime.NumCPU(), "Number of files converted in parallel")
	flag.StringVar(&opts.outDir, "out", ".", "Output directory")
	flag.StringVar(&opts.images, "images", "all", "Images to export: all, full, preview")
	flag.BoolVar(&opts.verify, "verify", false, "Decode every written file and check its size")
	flag.BoolVar(&opts.verbose, "verbose", false, "Verbose progress output")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.StringVar(&opts.cpuProfile, "cpuprofile", "", "Write CPU profile to file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: nefdump [flags] <input-dir-or-files...>\n\n")
		fmt.Fprintf(os.Stderr, "Export the images of Nikon NEF files as previews or raw sample dumps.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("nefdump %s (commit %s, built %s)\n", version, commit, buildDate)
		os.Exit(0)
	}
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(&opts, flag.Args()))
}

// run converts inputs and returns the process exit code. Deferred cleanup,
// including the CPU profile, completes before the process exits.
func run(opts *options, inputs []string) int {
	if opts.cpuProfile != "" {
		f, err := os.Create(opts.cpuProfile)
		if err != nil {
			log.Printf("Creating CPU profile: %v", err)
			return 1
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Printf("Starting CPU profile: %v", err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}

	switch opts.images {
	case "all", "full", "preview":
	default:
		log.Printf("Unknown -images value %q (want all, full or preview)", opts.images)
		return 1
	}
	if opts.format != "raw" {
		enc, err := encode.NewEncoder(opts.format, opts.quality)
		if err != nil {
			log.Printf("Encoder: %v", err)
			return 1
		}
		opts.enc = enc
	}
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		log.Printf("Creating output directory: %v", err)
		return 1
	}

	files, err := collectNEFs(inputs)
	if err != nil {
		log.Printf("Collecting input files: %v", err)
		return 1
	}
	if len(files) == 0 {
		log.Print("No NEF files found in the specified inputs")
		return 1
	}

	concurrency := batch.LimitConcurrency(opts.concurrency, estimateMemory(files[0]), batch.DefaultMemoryFraction, opts.verbose)

	fmt.Printf("nefdump %s (commit %s, built %s)\n", version, commit, buildDate)
	switch opts.format {
	case "jpeg", "webp":
		fmt.Printf("  %-14s %s (quality: %d)\n", "Format:", opts.format, opts.quality)
	default:
		fmt.Printf("  %-14s %s\n", "Format:", opts.format)
	}
	fmt.Printf("  %-14s %s\n", "Images:", opts.images)
	fmt.Printf("  %-14s %d\n", "Concurrency:", concurrency)
	fmt.Printf("  %-14s %d file(s)\n", "Input:", len(files))
	fmt.Printf("  %-14s %s\n", "Output:", opts.outDir)

	start := time.Now()
	cfg := batch.Config{
		Concurrency: concurrency,
		Verbose:     opts.verbose,
		Progress:    !opts.verbose,
		Label:       "Exporting",
	}
	stats, err := batch.Run(cfg, files, opts.convert)
	elapsed := time.Since(start).Round(time.Millisecond)
	fmt.Printf("Done: %d file(s), %d output(s), %s, %v\n",
		stats.Files-stats.Failed, stats.Outputs, humanSize(stats.TotalBytes), elapsed)
	if err != nil {
		log.Printf("%d file(s) failed:\n%v", stats.Failed, err)
		return 1
	}
	return 0
}

// convert exports the selected images of one NEF.
func (o *options) convert(path string) (batch.Result, error) {
	f, err := nef.Open(path)
	if err != nil {
		return batch.Result{}, err
	}
	defer f.Close()

	var res batch.Result
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, img := range f.Images() {
		a := img.Attributes()
		if (o.images == "full" && a.Type != nef.Full) || (o.images == "preview" && a.Type != nef.Reduced) {
			continue
		}
		raw, err := f.Samples(img)
		if err != nil {
			return res, fmt.Errorf("image %d: %w", img.Index(), err)
		}

		var data []byte
		ext := encode.RawExtension
		if o.enc == nil {
			data, err = encode.EncodeRaw(raw)
		} else {
			data, err = o.enc.Encode(encode.Preview(raw))
			ext = o.enc.FileExtension()
		}
		if err != nil {
			return res, fmt.Errorf("encoding image %d: %w", img.Index(), err)
		}

		out := filepath.Join(o.outDir, fmt.Sprintf("%s_%d%s", base, img.Index(), ext))
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return res, fmt.Errorf("writing %s: %w", out, err)
		}
		if o.verify {
			if err := verify(out, a); err != nil {
				return res, err
			}
		}
		res.Outputs++
		res.Bytes += int64(len(data))
	}
	return res, nil
}

// estimateMemory sizes one conversion from the largest image of path,
// assuming every input comes from the same camera. It returns 0 when path
// cannot be opened.
func estimateMemory(path string) int64 {
	f, err := nef.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	var peak int64
	for _, img := range f.Images() {
		a := img.Attributes()
		peak = max(peak, batch.FileMemory(a.Width, a.Height, a.Chans))
	}
	return peak
}

// verify decodes a written file and checks its dimensions.
func verify(path string, a nef.Attributes) error {
	var w, h int
	if encode.FormatFromPath(path) == "raw" {
		fh, err := os.Open(path)
		if err != nil {
			return err
		}
		defer fh.Close()
		r, err := encode.ReadRaw(fh)
		if err != nil {
			return fmt.Errorf("verifying %s: %w", path, err)
		}
		w, h = r.Width, r.Height
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		img, err := encode.DecodeImage(data, encode.FormatFromPath(path))
		if err != nil {
			return fmt.Errorf("verifying %s: %w", path, err)
		}
		w, h = img.Bounds().Dx(), img.Bounds().Dy()
	}
	if w != a.Width || h != a.Height {
		return fmt.Errorf("verifying %s: decoded %dx%d, want %dx%d", path, w, h, a.Width, a.Height)
	}
	return nil
}

// collectNEFs resolves input paths to a list of .nef files.
func collectNEFs(paths []string) ([]string, error) {
	var result []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if info.IsDir() {
			entries, err := os.ReadDir(p)
			if err != nil {
				return nil, fmt.Errorf("readdir %s: %w", p, err)
			}
			for _, e := range entries {
				if !e.IsDir() && isNEF(e.Name()) {
					result = append(result, filepath.Join(p, e.Name()))
				}
			}
		} else {
			result = append(result, p)
		}
	}
	return result, nil
}

func isNEF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".nef")
}

func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
