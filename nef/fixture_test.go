package nef

import (
	"encoding/binary"
	"testing"

	"github.com/pspoerri/nefko/internal/tiff"
	"github.com/pspoerri/nefko/internal/tiff/tifftest"
)

// imageSpec describes one image directory of a synthetic NEF.
type imageSpec struct {
	width, height int
	chans, bps    int
	compression   int
	subfile       uint32
	strips        [][]byte
	counts        []uint32 // overrides the strip lengths when set
	jpegTags      bool     // store the data under JPEGInterchangeFormat
	omitWidth     bool
}

func (s imageSpec) fields(b *tifftest.Builder) []tifftest.Field {
	fs := []tifftest.Field{
		b.Long(tagNewSubfileType, s.subfile),
		b.Long(tagImageLength, uint32(s.height)),
		b.Short(tagBitsPerSample, uint16(s.bps)),
		b.Short(tagCompression, uint16(s.compression)),
		b.Short(tagPhotometric, 2),
		b.Short(tagSamplesPerPixel, uint16(s.chans)),
		b.Long(tagRowsPerStrip, uint32(s.height)),
	}
	if !s.omitWidth {
		fs = append(fs, b.Long(tagImageWidth, uint32(s.width)))
	}
	offsets := make([]uint32, len(s.strips))
	lengths := make([]uint32, len(s.strips))
	for i, strip := range s.strips {
		offsets[i] = b.Append(strip)
		lengths[i] = uint32(len(strip))
	}
	if s.counts != nil {
		lengths = s.counts
	}
	if s.jpegTags {
		return append(fs, b.Long(tagJPEGOffset, offsets...), b.Long(tagJPEGLength, lengths...))
	}
	return append(fs, b.Long(tagStripOffsets, offsets...), b.Long(tagStripByteCounts, lengths...))
}

// fixture describes a synthetic NEF.
type fixture struct {
	order    binary.ByteOrder
	vendor   string // omitted when empty
	model    string
	root     imageSpec
	subs     []imageSpec
	noExif   bool
	noSubIFD bool

	serial       string // omitted when empty
	shutterCount uint32
	lensData     []byte // plaintext LensData, encrypted after byte 4
	decodeTable  []byte
	exposure     [2]uint32
	fnumber      [2]uint32
	makerNote    []byte // replaces the generated MakerNote when set
}

func newFixture() *fixture {
	return &fixture{
		order:        binary.LittleEndian,
		vendor:       nikonMake,
		model:        "NIKON D300S",
		root:         rgbThumb(4, 2),
		serial:       "3005123",
		shutterCount: 4321,
		exposure:     [2]uint32{1, 250},
		fnumber:      [2]uint32{56, 10},
	}
}

// rgbThumb is an uncompressed 8-bit RGB thumbnail whose samples count up
// from zero.
func rgbThumb(w, h int) imageSpec {
	pix := make([]byte, w*h*3)
	for i := range pix {
		pix[i] = byte(i)
	}
	return imageSpec{width: w, height: h, chans: 3, bps: 8, compression: compressionNone, subfile: 1, strips: [][]byte{pix}}
}

func (fx *fixture) obfuscation() Obfuscation {
	return newObfuscation(byte(serialKey(fx.serial)), fx.shutterCount)
}

func (fx *fixture) makerNoteBytes(t *testing.T) []byte {
	if fx.makerNote != nil {
		return fx.makerNote
	}
	return tifftest.NikonMakerNote(fx.order, func(b *tifftest.Builder) []tifftest.Field {
		fs := []tifftest.Field{
			b.Rational(mnWhiteBalance, 2, 1, 3, 2, 1, 1, 1, 1),
		}
		if fx.serial != "" {
			fs = append(fs, b.ASCII(mnSerial, fx.serial), b.Long(mnShutterCount, fx.shutterCount))
		}
		if fx.decodeTable != nil {
			fs = append(fs, b.Undefined(mnDecodeTable, fx.decodeTable))
		}
		if fx.lensData != nil {
			enc := append([]byte(nil), fx.lensData...)
			if len(enc) > 4 {
				tail, err := fx.obfuscation().Decrypt(enc[4:])
				if err != nil {
					t.Fatalf("encrypting lens data: %v", err)
				}
				copy(enc[4:], tail)
			}
			fs = append(fs, b.Undefined(mnLensData, enc))
		}
		return fs
	})
}

// bytes assembles the file.
func (fx *fixture) bytes(t *testing.T) []byte {
	t.Helper()
	b := tifftest.New(fx.order)

	subOffsets := make([]uint32, len(fx.subs))
	for i, s := range fx.subs {
		subOffsets[i] = b.AppendIFD(s.fields(b), 0)
	}

	root := fx.root.fields(b)
	if !fx.noExif {
		exif := b.AppendIFD([]tifftest.Field{
			b.Rational(tagExposureTime, fx.exposure[0], fx.exposure[1]),
			b.Rational(tagFNumber, fx.fnumber[0], fx.fnumber[1]),
			b.Undefined(tagMakerNote, fx.makerNoteBytes(t)),
		}, 0)
		root = append(root, b.Long(tagExifIFD, exif))
	}
	if fx.vendor != "" {
		root = append(root, b.ASCII(tagMake, fx.vendor))
	}
	if fx.model != "" {
		root = append(root, b.ASCII(tagModel, fx.model))
	}
	if !fx.noSubIFD {
		root = append(root, b.Long(tagSubIFDs, subOffsets...))
	}
	b.SetFirst(b.AppendIFD(root, 0))
	return b.Bytes()
}

func (fx *fixture) open(t *testing.T) *File {
	t.Helper()
	f, err := OpenBytes(fx.bytes(t))
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	t.Cleanup(func() {
		if !f.closed {
			f.Close()
		}
	})
	return f
}

// checkNoLeaks fails the test if containers or IFDs outlive it.
func checkNoLeaks(t *testing.T) {
	t.Helper()
	c0, i0 := tiff.Stats()
	t.Cleanup(func() {
		if c, i := tiff.Stats(); c != c0 || i != i0 {
			t.Errorf("leaked resources: containers %d -> %d, IFDs %d -> %d", c0, c, i0, i)
		}
	})
}

// d300sLens returns plaintext LensData version 0204.
func d300sLens() []byte {
	b := make([]byte, 4+d300sLensPayload)
	copy(b, d300sLensVersion)
	b[d300sAFAperture] = 48  // f/4
	b[d300sFocalLength] = 72 // 40 mm
	b[d300sLensID] = 7
	b[d300sMinFocal] = 48 // 20 mm
	b[d300sMaxFocal] = 96 // 80 mm
	return b
}
