package tiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	exiftiff "github.com/rwcarlsen/goexif/tiff"
)

// DataType is the TIFF field type of an IFD entry.
type DataType uint16

// TIFF data types.
const (
	Byte      DataType = 1
	ASCII     DataType = 2
	Short     DataType = 3
	Long      DataType = 4
	Rational  DataType = 5
	SByte     DataType = 6
	Undefined DataType = 7
	SShort    DataType = 8
	SLong     DataType = 9
	SRational DataType = 10
	Float     DataType = 11
	Double    DataType = 12
	IFDType   DataType = 13
)

// TypeSize returns the size in bytes of one value of type t, or 0 when the
// type is unknown.
func TypeSize(t DataType) int {
	switch t {
	case Byte, ASCII, SByte, Undefined:
		return 1
	case Short, SShort:
		return 2
	case Long, SLong, Float, IFDType:
		return 4
	case Rational, SRational, Double:
		return 8
	default:
		return 0
	}
}

var typeNames = [...]string{
	Byte: "BYTE", ASCII: "ASCII", Short: "SHORT", Long: "LONG", Rational: "RATIONAL",
	SByte: "SBYTE", Undefined: "UNDEFINED", SShort: "SSHORT", SLong: "SLONG",
	SRational: "SRATIONAL", Float: "FLOAT", Double: "DOUBLE", IFDType: "IFD",
}

func (t DataType) String() string {
	if int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint16(t))
}

var (
	// ErrTagNotFound is returned when an IFD has no entry for a tag.
	ErrTagNotFound = errors.New("tiff: tag not found")
	// ErrUnknownType is returned when an entry's type has no known size.
	ErrUnknownType = errors.New("tiff: unknown data type")
	// ErrShortBuffer is returned when a destination cannot hold a tag's data.
	ErrShortBuffer = errors.New("tiff: destination buffer too small")
)

// Entry is one resolved IFD entry.
type Entry struct {
	ID    uint16
	Type  DataType
	Count uint32

	field [4]byte          // raw value/offset field as stored in the directory
	data  []byte           // resolved value bytes; nil for unknown types
	order binary.ByteOrder // byte order of the directory the entry lives in
	tag   *exiftiff.Tag    // typed values; nil when data is nil
}

// Info returns the entry's type and value count.
func (e *Entry) Info() (DataType, uint32) {
	return e.Type, e.Count
}

// RawField returns the 4-byte value/offset field interpreted as an unsigned
// integer. For pointer tags (SubIFDs, ExifIFD, MakerNote) this is the
// offset of the pointed-to data.
func (e *Entry) RawField() uint32 {
	return e.order.Uint32(e.field[:])
}

// Size returns the number of bytes of resolved data, or 0 for unknown types.
func (e *Entry) Size() int {
	return len(e.data)
}

// Bytes returns the resolved value bytes. The slice is shared and must not
// be modified.
func (e *Entry) Bytes() []byte {
	return e.data
}

// Order returns the byte order of the entry's values.
func (e *Entry) Order() binary.ByteOrder {
	return e.order
}

// Uint returns the i'th value of an integer entry. Bytes of ASCII and
// UNDEFINED entries are returned as integers too.
func (e *Entry) Uint(i int) (uint32, error) {
	if err := e.checkIndex(i); err != nil {
		return 0, err
	}
	if e.Type == ASCII || e.Type == Undefined {
		return uint32(e.data[i]), nil
	}
	v, err := e.tag.Int64(i)
	if err != nil {
		return 0, fmt.Errorf("tiff: tag %#04x: %w", e.ID, err)
	}
	return uint32(v), nil
}

// Uints returns all values of an integer entry.
func (e *Entry) Uints() ([]uint32, error) {
	out := make([]uint32, e.Count)
	for i := range out {
		v, err := e.Uint(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Rational returns the i'th numerator/denominator pair of a rational entry.
func (e *Entry) Rational(i int) (num, den int64, err error) {
	if err := e.checkIndex(i); err != nil {
		return 0, 0, err
	}
	num, den, err = e.tag.Rat2(i)
	if err != nil {
		return 0, 0, fmt.Errorf("tiff: tag %#04x: %w", e.ID, err)
	}
	return num, den, nil
}

// Float returns the i'th value of any numeric entry as a float64.
func (e *Entry) Float(i int) (float64, error) {
	if err := e.checkIndex(i); err != nil {
		return 0, err
	}
	switch e.Type {
	case Rational, SRational:
		n, d, err := e.Rational(i)
		if err != nil {
			return 0, err
		}
		if d == 0 {
			return 0, fmt.Errorf("tiff: tag %#04x: zero denominator", e.ID)
		}
		return float64(n) / float64(d), nil
	case ASCII, Undefined:
		v, err := e.Uint(i)
		return float64(v), err
	case Float, Double:
		v, err := e.tag.Float(i)
		if err != nil {
			return 0, fmt.Errorf("tiff: tag %#04x: %w", e.ID, err)
		}
		return v, nil
	default:
		v, err := e.tag.Int64(i)
		if err != nil {
			return 0, fmt.Errorf("tiff: tag %#04x: %w", e.ID, err)
		}
		return float64(v), nil
	}
}

// checkIndex guards the decoded accessors, which panic out of range.
func (e *Entry) checkIndex(i int) error {
	if e.tag == nil {
		return fmt.Errorf("tiff: tag %#04x type %d: %w", e.ID, e.Type, ErrUnknownType)
	}
	if i < 0 || uint32(i) >= e.Count {
		return fmt.Errorf("tiff: tag %#04x: index %d out of range (count %d)", e.ID, i, e.Count)
	}
	return nil
}

// IFD is a parsed Image File Directory. Entries keep their on-disk order.
type IFD struct {
	Offset  uint32
	Next    uint32
	Entries []Entry

	order binary.ByteOrder
	src   []byte // buffer that value offsets are relative to
}

// Lookup returns the entry for a tag.
func (d *IFD) Lookup(id uint16) (*Entry, bool) {
	for i := range d.Entries {
		if d.Entries[i].ID == id {
			return &d.Entries[i], true
		}
	}
	return nil, false
}

// parseIFD reads the directory at offset within src. Entries are decoded
// one at a time so that an entry of unknown type stays listed, unresolved,
// instead of failing the whole directory. The next-IFD pointer is optional,
// as some MakerNote directories omit it.
func parseIFD(src []byte, bo binary.ByteOrder, offset uint32) (*IFD, error) {
	if uint64(offset)+2 > uint64(len(src)) {
		return nil, fmt.Errorf("tiff: IFD offset %d beyond end of data (%d bytes)", offset, len(src))
	}
	n := int(bo.Uint16(src[offset:]))
	start := uint64(offset) + 2
	end := start + uint64(n)*12
	if end > uint64(len(src)) {
		return nil, fmt.Errorf("tiff: IFD at %d with %d entries exceeds data (%d bytes)", offset, n, len(src))
	}

	ifd := &IFD{
		Offset:  offset,
		Entries: make([]Entry, 0, n),
		order:   bo,
		src:     src,
	}
	values := bytes.NewReader(src)
	for i := 0; i < n; i++ {
		e, err := decodeEntry(src[start+uint64(i)*12:start+uint64(i+1)*12], values, bo)
		if err != nil {
			return nil, fmt.Errorf("resolving entry tag %d: %w", e.ID, err)
		}
		ifd.Entries = append(ifd.Entries, e)
	}

	if end+4 <= uint64(len(src)) {
		ifd.Next = bo.Uint32(src[end:])
	}
	return ifd, nil
}

// entryReader feeds exiftiff.DecodeTag one 12-byte entry while value
// offsets resolve against the whole directory buffer.
type entryReader struct {
	io.Reader
	io.ReaderAt
}

// decodeEntry decodes one directory entry. Entries of unknown type or with
// no values are kept with their header only.
func decodeEntry(raw []byte, values io.ReaderAt, bo binary.ByteOrder) (Entry, error) {
	e := Entry{
		ID:    bo.Uint16(raw[0:2]),
		Type:  DataType(bo.Uint16(raw[2:4])),
		Count: bo.Uint32(raw[4:8]),
		order: bo,
	}
	copy(e.field[:], raw[8:12])
	if TypeSize(e.Type) == 0 || e.Count == 0 {
		return e, nil
	}

	hdr := append([]byte(nil), raw...)
	if e.Type == IFDType {
		// IFD offsets are LONGs to the decoder.
		bo.PutUint16(hdr[2:4], uint16(Long))
	}
	t, err := exiftiff.DecodeTag(entryReader{bytes.NewReader(hdr), values}, bo)
	if err != nil {
		return e, err
	}
	e.tag = t
	e.data = t.Val
	return e, nil
}
