package encode

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"testing"
)

// testPreview creates an opaque RGBA gradient the size of a small NEF
// thumbnail.
func testPreview(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img
}

func TestNewEncoder(t *testing.T) {
	tests := []struct {
		format  string
		wantFmt string
		wantExt string
		wantErr bool
	}{
		{"jpeg", "jpeg", ".jpg", false},
		{"jpg", "jpeg", ".jpg", false},
		{"png", "png", ".png", false},
		{"webp", "webp", ".webp", false},
		{"raw", "", "", true},
		{"tiff", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			enc, err := NewEncoder(tt.format, 85)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if enc.Format() != tt.wantFmt {
				t.Errorf("Format() = %q, want %q", enc.Format(), tt.wantFmt)
			}
			if enc.FileExtension() != tt.wantExt {
				t.Errorf("FileExtension() = %q, want %q", enc.FileExtension(), tt.wantExt)
			}
			if got := FormatFromPath("DSC_0001" + enc.FileExtension()); got != enc.Format() {
				t.Errorf("FormatFromPath(%q) = %q, want %q", enc.FileExtension(), got, enc.Format())
			}
		})
	}
}

func TestEncoders_RoundTrip(t *testing.T) {
	const w, h = 160, 120
	src := testPreview(w, h)

	tests := []struct {
		format  string
		quality int
		maxDiff int
	}{
		{"png", 90, 0},
		{"jpeg", 90, 30},
		{"webp", 90, 60},
		{"webp", 100, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.format, tt.quality), func(t *testing.T) {
			enc, err := NewEncoder(tt.format, tt.quality)
			if err != nil {
				t.Fatal(err)
			}
			data, err := enc.Encode(src)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if len(data) == 0 {
				t.Fatal("Encode produced empty data")
			}
			decoded, err := DecodeImage(data, enc.Format())
			if err != nil {
				t.Fatalf("DecodeImage: %v", err)
			}
			if b := decoded.Bounds(); b.Dx() != w || b.Dy() != h {
				t.Fatalf("decoded size = %dx%d, want %dx%d", b.Dx(), b.Dy(), w, h)
			}

			maxDiff := 0
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					or, _, _, _ := src.At(x, y).RGBA()
					dr, _, _, _ := decoded.At(x, y).RGBA()
					diff := int(or>>8) - int(dr>>8)
					if diff < 0 {
						diff = -diff
					}
					maxDiff = max(maxDiff, diff)
				}
			}
			if maxDiff > tt.maxDiff {
				t.Errorf("max red diff = %d, want <= %d", maxDiff, tt.maxDiff)
			}
		})
	}
}

func TestEncode_ReusesBuffers(t *testing.T) {
	enc := &PNGEncoder{}
	a, err := enc.Encode(testPreview(8, 8))
	if err != nil {
		t.Fatal(err)
	}
	saved := bytes.Clone(a)
	if _, err := enc.Encode(testPreview(16, 4)); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, saved) {
		t.Error("a later Encode overwrote earlier output")
	}
}

func TestDecodeImage_Unsupported(t *testing.T) {
	if _, err := DecodeImage([]byte{1, 2, 3}, "raw"); err == nil {
		t.Error("DecodeImage accepted raw")
	}
	if _, err := DecodeImage([]byte{1, 2, 3}, "png"); err == nil {
		t.Error("DecodeImage accepted garbage PNG")
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]string{
		"out/a.JPG":           "jpeg",
		"a.jpeg":              "jpeg",
		"a.png":               "png",
		"a.webp":              "webp",
		"a" + RawExtension:    "raw",
		"a.nef":               "",
		"no-extension-at-all": "",
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}
