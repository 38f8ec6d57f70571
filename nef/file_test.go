package nef

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pspoerri/nefko/internal/tiff"
)

func TestOpenBytes(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		t.Run(order.String(), func(t *testing.T) {
			checkNoLeaks(t)
			fx := newFixture()
			fx.order = order
			full := rgbThumb(6, 4)
			full.subfile = 0
			fx.subs = []imageSpec{full, rgbThumb(3, 2)}
			f := fx.open(t)

			if got := f.ImageCount(); got != 3 {
				t.Fatalf("ImageCount() = %d, want 3", got)
			}
			if f.Model() != "NIKON D300S" {
				t.Errorf("Model() = %q", f.Model())
			}
			if f.Make() != nikonMake {
				t.Errorf("Make() = %q", f.Make())
			}
			if got, want := f.Obfuscation(), fx.obfuscation(); got != want {
				t.Errorf("Obfuscation() = %v, want %v", got, want)
			}

			want := []Attributes{
				{Width: 4, Height: 2, Chans: 3, Type: Reduced, DataType: DataTypeUint, BitsPerSample: 8, Compression: 1, Photometric: 2},
				{Width: 6, Height: 4, Chans: 3, Type: Full, DataType: DataTypeUint, BitsPerSample: 8, Compression: 1, Photometric: 2},
				{Width: 3, Height: 2, Chans: 3, Type: Reduced, DataType: DataTypeUint, BitsPerSample: 8, Compression: 1, Photometric: 2},
			}
			for i, w := range want {
				img, err := f.Image(i)
				if err != nil {
					t.Fatalf("Image(%d): %v", i, err)
				}
				if img.Index() != i {
					t.Errorf("Image(%d).Index() = %d", i, img.Index())
				}
				got, err := f.Attributes(img)
				if err != nil {
					t.Fatalf("Attributes(%d): %v", i, err)
				}
				if got != w {
					t.Errorf("image %d attributes = %+v, want %+v", i, got, w)
				}
			}

			if err := f.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
		})
	}
}

func TestOpen_SubIFDCount(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		fx := newFixture()
		for i := 0; i < n; i++ {
			fx.subs = append(fx.subs, rgbThumb(2, 2))
		}
		f := fx.open(t)
		if got := f.ImageCount(); got != n+1 {
			t.Errorf("%d SubIFDs: ImageCount() = %d, want %d", n, got, n+1)
		}
	}
}

func TestOpen_ExcisesBrokenSubIFDs(t *testing.T) {
	checkNoLeaks(t)
	fx := newFixture()
	broken := rgbThumb(2, 2)
	broken.omitWidth = true
	fx.subs = []imageSpec{rgbThumb(2, 2), broken, rgbThumb(5, 1)}
	f := fx.open(t)

	if got := f.ImageCount(); got != 3 {
		t.Fatalf("ImageCount() = %d, want 3", got)
	}
	last, err := f.Image(2)
	if err != nil {
		t.Fatal(err)
	}
	if a := last.Attributes(); a.Width != 5 || a.Height != 1 {
		t.Errorf("image 2 is %dx%d, want 5x1", a.Width, a.Height)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpen_NotNEF(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fixture)
	}{
		{"missing Make", func(fx *fixture) { fx.vendor = "" }},
		{"other vendor", func(fx *fixture) { fx.vendor = "OTHER VENDOR" }},
		{"vendor prefix", func(fx *fixture) { fx.vendor = "NIKON" }},
		{"no SubIFDs", func(fx *fixture) { fx.noSubIFD = true }},
		{"no EXIF", func(fx *fixture) { fx.noExif = true }},
		{"bad MakerNote magic", func(fx *fixture) {
			fx.makerNote = append([]byte("Canon\x00"), make([]byte, 40)...)
		}},
		{"short MakerNote", func(fx *fixture) { fx.makerNote = []byte("Nikon\x00\x02") }},
		{"root image without width", func(fx *fixture) { fx.root.omitWidth = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkNoLeaks(t)
			fx := newFixture()
			fx.subs = []imageSpec{rgbThumb(2, 2)}
			tt.mutate(fx)
			f, err := OpenBytes(fx.bytes(t))
			if err == nil {
				f.Close()
				t.Fatal("OpenBytes succeeded")
			}
			if !errors.Is(err, ErrNotNEF) {
				t.Errorf("error %v is not ErrNotNEF", err)
			}
			if StatusOf(err) != StatusNotNEF {
				t.Errorf("StatusOf = %d, want %d", StatusOf(err), StatusNotNEF)
			}
		})
	}
}

func TestOpen_Paths(t *testing.T) {
	checkNoLeaks(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "good.nef")
	if err := os.WriteFile(good, newFixture().bytes(t), 0o644); err != nil {
		t.Fatal(err)
	}
	text := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(text, []byte("not a raw file at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Open(good)
	if err != nil {
		t.Fatalf("Open(%s): %v", good, err)
	}
	if f.ImageCount() != 1 {
		t.Errorf("ImageCount() = %d, want 1", f.ImageCount())
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tests := []struct {
		path string
		want error
	}{
		{"", ErrBadArgument},
		{filepath.Join(dir, "missing.nef"), ErrNotFound},
		{text, ErrNotNEF},
	}
	for _, tt := range tests {
		if _, err := Open(tt.path); !errors.Is(err, tt.want) {
			t.Errorf("Open(%q) error = %v, want %v", tt.path, err, tt.want)
		}
	}
	if _, err := OpenBytes(nil); !errors.Is(err, ErrBadArgument) {
		t.Errorf("OpenBytes(nil) error = %v, want ErrBadArgument", err)
	}
}

func TestOpen_Twice(t *testing.T) {
	fx := newFixture()
	full := rgbThumb(6, 4)
	full.subfile = 0
	fx.subs = []imageSpec{full}
	data := fx.bytes(t)

	var raws [2][]byte
	var attrs [2][]Attributes
	for i := range raws {
		f, err := OpenBytes(data)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		for _, img := range f.Images() {
			attrs[i] = append(attrs[i], img.Attributes())
		}
		img, _ := f.Image(1)
		size, _ := f.RawSize(img)
		raws[i] = make([]byte, size)
		if err := f.ReadRaw(img, raws[i]); err != nil {
			t.Fatalf("open %d: ReadRaw: %v", i, err)
		}
		f.Close()
	}
	if len(attrs[0]) != len(attrs[1]) {
		t.Fatalf("image counts differ: %d vs %d", len(attrs[0]), len(attrs[1]))
	}
	for i := range attrs[0] {
		if attrs[0][i] != attrs[1][i] {
			t.Errorf("image %d: %+v vs %+v", i, attrs[0][i], attrs[1][i])
		}
	}
	if !bytes.Equal(raws[0], raws[1]) {
		t.Error("raw data differs between opens")
	}
}

func TestImage_Range(t *testing.T) {
	fx := newFixture()
	fx.subs = []imageSpec{rgbThumb(2, 2), rgbThumb(2, 2)}
	f := fx.open(t)

	n := f.ImageCount()
	if _, err := f.Image(n - 1); err != nil {
		t.Errorf("Image(%d): %v", n-1, err)
	}
	for _, i := range []int{n, n + 10, -1} {
		if _, err := f.Image(i); !errors.Is(err, ErrRange) {
			t.Errorf("Image(%d) error = %v, want ErrRange", i, err)
		}
	}
}

func TestClose_Twice(t *testing.T) {
	checkNoLeaks(t)
	f, err := OpenBytes(newFixture().bytes(t))
	if err != nil {
		t.Fatal(err)
	}
	img, _ := f.Image(0)
	if _, err := f.Samples(img); err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := f.Close(); !errors.Is(err, ErrBadArgument) {
		t.Errorf("second Close error = %v, want ErrBadArgument", err)
	}
	if _, err := f.Image(0); !errors.Is(err, ErrBadArgument) {
		t.Errorf("Image after Close error = %v, want ErrBadArgument", err)
	}
	if _, err := f.Samples(img); !errors.Is(err, ErrBadArgument) {
		t.Errorf("Samples after Close error = %v, want ErrBadArgument", err)
	}
}

func TestExifTag(t *testing.T) {
	f := newFixture().open(t)

	typ, count, err := f.ExifTag(tagExposureTime, nil)
	if err != nil {
		t.Fatalf("ExifTag(info): %v", err)
	}
	if typ != tiff.Rational || count != 1 {
		t.Errorf("ExposureTime is type %d count %d, want RATIONAL x1", typ, count)
	}

	data := make([]byte, 8)
	if _, _, err := f.ExifTag(tagExposureTime, data); err != nil {
		t.Fatalf("ExifTag(data): %v", err)
	}
	if num, den := binary.LittleEndian.Uint32(data), binary.LittleEndian.Uint32(data[4:]); num != 1 || den != 250 {
		t.Errorf("ExposureTime = %d/%d, want 1/250", num, den)
	}

	if _, _, err := f.ExifTag(tagExposureTime, make([]byte, 4)); !errors.Is(err, ErrRange) {
		t.Errorf("short buffer error = %v, want ErrRange", err)
	}
	if _, _, err := f.ExifTag(0x9999, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing tag error = %v, want ErrNotFound", err)
	}
}

func TestWhiteBalance(t *testing.T) {
	f := newFixture().open(t)
	wb, err := f.WhiteBalance()
	if err != nil {
		t.Fatalf("WhiteBalance: %v", err)
	}
	want := []float32{2, 1.5, 1, 1}
	if len(wb) != len(want) {
		t.Fatalf("WhiteBalance() = %v, want %v", wb, want)
	}
	for i := range want {
		if wb[i] != want[i] {
			t.Errorf("WhiteBalance()[%d] = %v, want %v", i, wb[i], want[i])
		}
	}
}

func TestDecryptTag(t *testing.T) {
	fx := newFixture()
	fx.lensData = d300sLens()
	f := fx.open(t)

	got, err := f.DecryptTag(mnLensData)
	if err != nil {
		t.Fatalf("DecryptTag: %v", err)
	}
	if !bytes.Equal(got, fx.lensData) {
		t.Errorf("DecryptTag() = % x, want % x", got, fx.lensData)
	}
	raw, err := f.MakerNote().Bytes(mnLensData)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(raw[4:], fx.lensData[4:]) {
		t.Error("stored lens data is not encrypted")
	}
}

func TestOpen_WithoutObfuscation(t *testing.T) {
	fx := newFixture()
	fx.serial = ""
	fx.lensData = d300sLens()
	f := fx.open(t)

	if f.Obfuscation().Valid {
		t.Error("Obfuscation().Valid = true without serial")
	}
	if _, err := f.DecryptTag(mnLensData); err == nil {
		t.Error("DecryptTag succeeded without obfuscation parameters")
	}
	if _, _, err := f.ImageAttribs(); !errors.Is(err, ErrNotFound) {
		t.Errorf("ImageAttribs error = %v, want ErrNotFound", err)
	}
}

func TestOpen_SerialKeyUsesStoredBytes(t *testing.T) {
	for _, serial := range []string{"3005123  ", "30\xe951"} {
		fx := newFixture()
		fx.serial = serial
		f := fx.open(t)
		if got, want := f.Obfuscation(), fx.obfuscation(); got != want {
			t.Errorf("serial %q: Obfuscation() = %v, want %v", serial, got, want)
		}
	}
}

func TestImageAttribs(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*fixture)
		denom    uint32
		aperture float32
		wantErr  error
	}{
		{"lens data", func(fx *fixture) { fx.lensData = d300sLens() }, 250, 4, nil},
		{"aperture from EXIF", func(fx *fixture) {
			fx.lensData = d300sLens()
			fx.lensData[d300sAFAperture] = 0
		}, 250, 5.6, nil},
		{"slow shutter", func(fx *fixture) {
			fx.lensData = d300sLens()
			fx.exposure = [2]uint32{10, 30}
		}, 3, 4, nil},
		{"no lens data", func(fx *fixture) {}, 0, 0, ErrNotFound},
		{"wrong size", func(fx *fixture) { fx.lensData = d300sLens()[:20] }, 0, 0, ErrNotFound},
		{"wrong version", func(fx *fixture) {
			fx.lensData = d300sLens()
			copy(fx.lensData, "0100")
		}, 0, 0, ErrNotFound},
		{"other model", func(fx *fixture) {
			fx.model = "NIKON D7000"
			fx.lensData = d300sLens()
		}, 0, 0, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkNoLeaks(t)
			fx := newFixture()
			tt.mutate(fx)
			f := fx.open(t)
			denom, aperture, err := f.ImageAttribs()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ImageAttribs error = %v, want %v", err, tt.wantErr)
				}
				if f.CameraReport() != nil {
					t.Error("CameraReport() without camera data")
				}
				return
			}
			if err != nil {
				t.Fatalf("ImageAttribs: %v", err)
			}
			if denom != tt.denom || math.Abs(float64(aperture-tt.aperture)) > 1e-4 {
				t.Errorf("ImageAttribs() = 1/%d f/%v, want 1/%d f/%v", denom, aperture, tt.denom, tt.aperture)
			}
			if len(f.CameraReport()) == 0 {
				t.Error("CameraReport() is empty")
			}
		})
	}
}

func TestD300S_ModelDataSize(t *testing.T) {
	s := &d300sState{}
	err := s.ReadModelData(ModelData{Bytes: d300sLens()[:30]})
	if err == nil {
		t.Fatal("ReadModelData accepted short data")
	}
	if got := StatusOf(err); got != statusMakerNoteSize {
		t.Errorf("StatusOf = %#x, want %#x", got, statusMakerNoteSize)
	}
	if err := s.ReadModelData(ModelData{Bytes: d300sLens()}); err != nil {
		t.Fatalf("ReadModelData: %v", err)
	}
	if s.lensID != 7 || s.focalLength != 40 || s.minFocal != 20 || s.maxFocal != 80 {
		t.Errorf("lens %d %.1f mm (%.1f-%.1f)", s.lensID, s.focalLength, s.minFocal, s.maxFocal)
	}
}
