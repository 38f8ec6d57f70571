package main

import (
	"fmt"
	"os"

	"github.com/pspoerri/nefko/internal/npc"
	"github.com/pspoerri/nefko/nef"
)

// MakerNote tags shown in decoded form.
const (
	tagCompression = 0x0093
	tagDecodeTable = 0x0096
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: nefdebug <file.nef>")
		os.Exit(1)
	}
	path := os.Args[1]
	f, err := nef.Open(path)
	if err != nil {
		fmt.Printf("Error opening: %v (status %#x)\n", err, nef.StatusOf(err))
		os.Exit(1)
	}
	defer f.Close()

	fmt.Printf("Make: %q, Model: %q\n", f.Make(), f.Model())
	fmt.Printf("Obfuscation: %s\n", f.Obfuscation())

	dumpDirectory("Root IFD", f.Root())
	for _, img := range f.Images() {
		a := img.Attributes()
		dumpDirectory(fmt.Sprintf("Image %d (%s, %dx%d)", img.Index(), a.Type, a.Width, a.Height), img.Directory())
	}
	dumpDirectory("EXIF IFD", f.Exif())
	mn := f.MakerNote()
	if mn == nil {
		fmt.Println("\nNo MakerNote")
		return
	}
	dumpDirectory("MakerNote", mn)

	fmt.Println("\n--- Model Data ---")
	for _, cam := range nef.Cameras() {
		if cam.Model() != f.Model() {
			continue
		}
		tag := cam.ModelDataTag()
		plain, err := f.DecryptTag(tag)
		if err != nil {
			fmt.Printf("Tag %#04x: %v\n", tag, err)
			break
		}
		fmt.Printf("Tag %#04x (%d bytes): version %q\n", tag, len(plain), plain[:min(4, len(plain))])
		fmt.Printf("Decrypted: % x\n", plain)
		break
	}

	fmt.Println("\n--- Decode Table ---")
	if c, err := mn.Uint(tagCompression); err == nil {
		fmt.Printf("NEF compression: %d\n", c)
	}
	raw, err := mn.Bytes(tagDecodeTable)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	for _, bps := range []int{12, 14} {
		t, err := npc.ParseTable(raw, mn.Order(), bps)
		if err != nil {
			fmt.Printf("%d-bit: %v\n", bps, err)
			continue
		}
		fmt.Printf("%d-bit: ver=%#02x/%#02x tree=%d lossless=%v vpred=%v curve=%d split=%d\n",
			bps, t.Ver0, t.Ver1, t.Tree, t.Lossless(), t.VPred, t.CurveSize, t.Split)
		if t.CurveSize > 1 {
			fmt.Printf("  curve[0]=%d curve[%d]=%d\n", t.Curve[0], t.CurveSize-1, t.Curve[t.CurveSize-1])
		}
	}
}

func dumpDirectory(title string, d *nef.Directory) {
	fmt.Printf("\n--- %s ---\n", title)
	for _, e := range d.Entries() {
		b := e.Bytes()
		fmt.Printf("  %#04x %-9s x%-6d % x", e.ID, e.Type, e.Count, b[:min(16, len(b))])
		if len(b) > 16 {
			fmt.Print(" ...")
		}
		fmt.Println()
	}
}
