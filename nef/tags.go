package nef

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/charmap"

	"github.com/pspoerri/nefko/internal/tiff"
)

// Well-known tag ids.
const (
	tagNewSubfileType  = 0x00FE
	tagImageWidth      = 0x0100
	tagImageLength     = 0x0101
	tagBitsPerSample   = 0x0102
	tagCompression     = 0x0103
	tagPhotometric     = 0x0106
	tagMake            = 0x010F
	tagModel           = 0x0110
	tagStripOffsets    = 0x0111
	tagSamplesPerPixel = 0x0115
	tagRowsPerStrip    = 0x0116
	tagStripByteCounts = 0x0117
	tagSubIFDs         = 0x014A
	tagJPEGOffset      = 0x0201
	tagJPEGLength      = 0x0202
	tagExposureTime    = 0x829A
	tagFNumber         = 0x829D
	tagExifIFD         = 0x8769
	tagMakerNote       = 0x927C

	mnWhiteBalance = 0x000C
	mnSerial       = 0x001D
	mnCompression  = 0x0093
	mnDecodeTable  = 0x0096
	mnLensData     = 0x0098
	mnShutterCount = 0x00A7
)

// getTag copies a tag's value into dest, which must be one of *uint32,
// *int, *string, []byte or []uint32. Slices must be large enough to hold
// every value.
func getTag(c *tiff.Container, h tiff.IFDHandle, id uint16, dest interface{}) error {
	e, err := c.Tag(h, id)
	if err != nil {
		return translate(fmt.Sprintf("tag %#04x", id), err)
	}

	switch d := dest.(type) {
	case *uint32:
		v, err := e.Uint(0)
		if err != nil {
			return wrap(ErrRange, fmt.Sprintf("tag %#04x", id), err)
		}
		*d = v
	case *int:
		v, err := e.Uint(0)
		if err != nil {
			return wrap(ErrRange, fmt.Sprintf("tag %#04x", id), err)
		}
		*d = int(v)
	case *string:
		buf := make([]byte, e.Size())
		if _, err := c.TagData(h, e, buf); err != nil {
			return translate(fmt.Sprintf("tag %#04x", id), err)
		}
		*d = decodeString(buf)
	case []byte:
		if _, err := c.TagData(h, e, d); err != nil {
			return translate(fmt.Sprintf("tag %#04x", id), err)
		}
	case []uint32:
		if uint32(len(d)) < e.Count {
			return fmt.Errorf("tag %#04x has %d values, buffer holds %d: %w", id, e.Count, len(d), ErrRange)
		}
		vals, err := e.Uints()
		if err != nil {
			return wrap(ErrRange, fmt.Sprintf("tag %#04x", id), err)
		}
		copy(d, vals)
	default:
		return fmt.Errorf("tag %#04x: unsupported destination %T: %w", id, dest, ErrBadArgument)
	}
	return nil
}

// getTagAlloc returns a fresh copy of a tag's data along with its type and
// count. Every result is zero on failure.
func getTagAlloc(c *tiff.Container, h tiff.IFDHandle, id uint16) ([]byte, tiff.DataType, uint32, error) {
	e, err := c.Tag(h, id)
	if err != nil {
		return nil, 0, 0, translate(fmt.Sprintf("tag %#04x", id), err)
	}
	typ, count := e.Info()
	size := tiff.TypeSize(typ)
	if size == 0 {
		return nil, 0, 0, fmt.Errorf("tag %#04x has unknown type %d: %w", id, typ, ErrRange)
	}
	buf := make([]byte, size*int(count))
	if _, err := c.TagData(h, e, buf); err != nil {
		return nil, 0, 0, translate(fmt.Sprintf("tag %#04x", id), err)
	}
	return buf, typ, count, nil
}

// decodeString converts an ASCII tag value, which cameras fill with
// Latin-1 text, to UTF-8. The value ends at the first NUL.
func decodeString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(bytes.TrimRight(out, " "))
}

// Directory is a read-only view of one IFD: the EXIF IFD, the MakerNote or
// an image's own directory.
type Directory struct {
	c *tiff.Container
	h tiff.IFDHandle
}

// Order returns the byte order of the directory's values.
func (d *Directory) Order() binary.ByteOrder {
	return d.c.Order(d.h)
}

// Entries returns the directory's entries in on-disk order.
func (d *Directory) Entries() []tiff.Entry {
	ifd, err := d.c.IFD(d.h)
	if err != nil {
		return nil
	}
	return ifd.Entries
}

// Has reports whether the directory contains a tag.
func (d *Directory) Has(id uint16) bool {
	_, err := d.c.Tag(d.h, id)
	return err == nil
}

// Info returns a tag's type and value count.
func (d *Directory) Info(id uint16) (tiff.DataType, uint32, error) {
	e, err := d.c.Tag(d.h, id)
	if err != nil {
		return 0, 0, translate(fmt.Sprintf("tag %#04x", id), err)
	}
	typ, count := e.Info()
	return typ, count, nil
}

// Uint returns the first value of an integer tag.
func (d *Directory) Uint(id uint16) (uint32, error) {
	var v uint32
	err := getTag(d.c, d.h, id, &v)
	return v, err
}

// Uints returns every value of an integer tag.
func (d *Directory) Uints(id uint16) ([]uint32, error) {
	_, count, err := d.Info(id)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, count)
	if err := getTag(d.c, d.h, id, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Float returns value i of a numeric tag as a float64.
func (d *Directory) Float(id uint16, i int) (float64, error) {
	e, err := d.c.Tag(d.h, id)
	if err != nil {
		return 0, translate(fmt.Sprintf("tag %#04x", id), err)
	}
	v, err := e.Float(i)
	if err != nil {
		return 0, wrap(ErrRange, fmt.Sprintf("tag %#04x", id), err)
	}
	return v, nil
}

// Rational returns numerator and denominator i of a rational tag.
func (d *Directory) Rational(id uint16, i int) (num, den int64, err error) {
	e, err := d.c.Tag(d.h, id)
	if err != nil {
		return 0, 0, translate(fmt.Sprintf("tag %#04x", id), err)
	}
	num, den, err = e.Rational(i)
	if err != nil {
		return 0, 0, wrap(ErrRange, fmt.Sprintf("tag %#04x", id), err)
	}
	return num, den, nil
}

// String returns a text tag decoded from Latin-1.
func (d *Directory) String(id uint16) (string, error) {
	var s string
	err := getTag(d.c, d.h, id, &s)
	return s, err
}

// Bytes returns a copy of a tag's raw value bytes.
func (d *Directory) Bytes(id uint16) ([]byte, error) {
	b, _, _, err := getTagAlloc(d.c, d.h, id)
	return b, err
}
