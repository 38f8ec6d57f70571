package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pspoerri/nefko/nef"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		samples     int
		decode      bool
		showVersion bool
	)
	flag.IntVar(&samples, "samples", 5, "Number of diagonal sample pixels to print per image")
	flag.BoolVar(&decode, "decode", true, "Decode every image to check reader support")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: nefinfo [flags] <file.nef>...\n\n")
		fmt.Fprintf(os.Stderr, "Print the images and metadata of Nikon NEF files.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("nefinfo %s (commit %s, built %s)\n", version, commit, buildDate)
		os.Exit(0)
	}
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	status := 0
	cache := nef.NewTileCache(4)
	for _, path := range flag.Args() {
		if err := info(path, cache, decode, samples); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v (status %d)\n", path, err, nef.StatusOf(err))
			status = 1
		}
	}
	os.Exit(status)
}

func info(path string, cache *nef.TileCache, decode bool, samples int) error {
	f, err := nef.Open(path)
	if err != nil {
		return err
	}
	cf := nef.NewCachedFile(f, cache)
	defer cf.Close()

	fmt.Printf("File: %s\n", path)
	fmt.Printf("Camera: %s %s\n", cf.Make(), cf.Model())
	fmt.Printf("Obfuscation: %s\n", cf.Obfuscation())
	if wb, err := cf.WhiteBalance(); err == nil {
		fmt.Printf("White balance: %v\n", wb)
	}
	if denom, aperture, err := cf.ImageAttribs(); err == nil {
		fmt.Printf("Exposure: 1/%d s at f/%.1f\n", denom, aperture)
	}
	for _, field := range cf.CameraReport() {
		fmt.Printf("%s: %s\n", field.Name, field.Value)
	}
	fmt.Printf("Images: %d\n", cf.ImageCount())

	for _, img := range cf.Images() {
		a := img.Attributes()
		fmt.Printf("\n  Image %d: %dx%d, %d channel(s), %d bits, %s, compression %d, photometric %d\n",
			img.Index(), a.Width, a.Height, a.Chans, a.BitsPerSample, a.Type, a.Compression, a.Photometric)
		if !decode {
			continue
		}
		size, _ := cf.RawSize(img)
		fmt.Printf("  Raw size: %d bytes\n", size)

		tw, th, err := cf.TileSize(img)
		if err != nil {
			fmt.Printf("  TileSize: ERROR: %v\n", err)
			continue
		}
		tile, err := cf.ReadTileCached(img, 0, 0)
		if err != nil {
			fmt.Printf("  ReadTile(0, 0): ERROR: %v\n", err)
			continue
		}
		fmt.Printf("  ReadTile(0, 0): OK, tile %dx%d, window %dx%d\n", tw, th, tile.Width, tile.Height)
		printRange(tile)
		samplePixels(tile, samples)
	}
	return nil
}

func printRange(r *nef.RawImage) {
	if len(r.Pix) == 0 {
		return
	}
	lo, hi := r.Pix[0], r.Pix[0]
	for _, v := range r.Pix {
		lo, hi = min(lo, v), max(hi, v)
	}
	fmt.Printf("  Sample range: [%d, %d] of %d\n", lo, hi, r.Max())
}

func samplePixels(r *nef.RawImage, count int) {
	if count <= 0 {
		return
	}
	step := max(r.Width/(count+1), 1)
	fmt.Printf("  Sample pixels (diagonal):\n")
	for i := 0; i < count; i++ {
		x := (i + 1) * step
		y := (i + 1) * step
		if x >= r.Width || y >= r.Height {
			break
		}
		vals := make([]uint16, r.Chans)
		for ch := range vals {
			vals[ch] = r.At(x, y, ch)
		}
		fmt.Printf("    (%d,%d): %v\n", x, y, vals)
	}
}
