// Package tifftest builds small classic TIFF streams for tests.
//
// Streams are assembled bottom-up: append blobs and child directories
// first, then the directories that point at them, then set the first IFD.
package tifftest

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/pspoerri/nefko/internal/tiff"
)

// Field is one directory entry with its value already encoded.
type Field struct {
	Tag   uint16
	Type  tiff.DataType
	Count uint32
	Value []byte
}

// Builder accumulates a TIFF stream.
type Builder struct {
	order binary.ByteOrder
	buf   []byte
}

// New starts a stream with an 8-byte header and no first IFD.
func New(order binary.ByteOrder) *Builder {
	b := &Builder{order: order, buf: make([]byte, 8)}
	if order == binary.LittleEndian {
		copy(b.buf, "II")
	} else {
		copy(b.buf, "MM")
	}
	order.PutUint16(b.buf[2:], 42)
	return b
}

// Order returns the stream's byte order.
func (b *Builder) Order() binary.ByteOrder { return b.order }

// SetFirst points the header at the first IFD.
func (b *Builder) SetFirst(off uint32) {
	b.order.PutUint32(b.buf[4:], off)
}

// Bytes returns the assembled stream.
func (b *Builder) Bytes() []byte { return b.buf }

// Append writes data at the next word boundary and returns its offset.
func (b *Builder) Append(data []byte) uint32 {
	if len(b.buf)%2 == 1 {
		b.buf = append(b.buf, 0)
	}
	off := uint32(len(b.buf))
	b.buf = append(b.buf, data...)
	return off
}

// AppendIFD writes a directory followed by its out-of-line values and
// returns the directory offset. Fields are written in tag order.
func (b *Builder) AppendIFD(fields []Field, next uint32) uint32 {
	fs := append([]Field(nil), fields...)
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].Tag < fs[j].Tag })

	if len(b.buf)%2 == 1 {
		b.buf = append(b.buf, 0)
	}
	off := uint32(len(b.buf))
	size := 2 + 12*len(fs) + 4
	dir := make([]byte, size)
	b.buf = append(b.buf, dir...)
	b.order.PutUint16(b.buf[off:], uint16(len(fs)))

	for i, f := range fs {
		e := b.buf[int(off)+2+12*i:]
		b.order.PutUint16(e[0:], f.Tag)
		b.order.PutUint16(e[2:], uint16(f.Type))
		b.order.PutUint32(e[4:], f.Count)
		if len(f.Value) <= 4 {
			copy(e[8:12], f.Value)
			continue
		}
		voff := b.Append(f.Value)
		// Append may have grown buf; re-slice before writing the pointer.
		b.order.PutUint32(b.buf[int(off)+2+12*i+8:], voff)
	}
	b.order.PutUint32(b.buf[int(off)+2+12*len(fs):], next)
	return off
}

// Byte builds a BYTE field.
func (b *Builder) Byte(tag uint16, v ...byte) Field {
	return Field{Tag: tag, Type: tiff.Byte, Count: uint32(len(v)), Value: append([]byte(nil), v...)}
}

// Undefined builds an UNDEFINED field holding raw bytes.
func (b *Builder) Undefined(tag uint16, v []byte) Field {
	return Field{Tag: tag, Type: tiff.Undefined, Count: uint32(len(v)), Value: append([]byte(nil), v...)}
}

// ASCII builds a NUL-terminated ASCII field.
func (b *Builder) ASCII(tag uint16, s string) Field {
	v := append([]byte(s), 0)
	return Field{Tag: tag, Type: tiff.ASCII, Count: uint32(len(v)), Value: v}
}

// Short builds a SHORT field.
func (b *Builder) Short(tag uint16, v ...uint16) Field {
	buf := make([]byte, 2*len(v))
	for i, x := range v {
		b.order.PutUint16(buf[2*i:], x)
	}
	return Field{Tag: tag, Type: tiff.Short, Count: uint32(len(v)), Value: buf}
}

// Long builds a LONG field.
func (b *Builder) Long(tag uint16, v ...uint32) Field {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		b.order.PutUint32(buf[4*i:], x)
	}
	return Field{Tag: tag, Type: tiff.Long, Count: uint32(len(v)), Value: buf}
}

// Rational builds a RATIONAL field from numerator/denominator pairs.
func (b *Builder) Rational(tag uint16, pairs ...uint32) Field {
	buf := make([]byte, 4*len(pairs))
	for i, x := range pairs {
		b.order.PutUint32(buf[4*i:], x)
	}
	return Field{Tag: tag, Type: tiff.Rational, Count: uint32(len(pairs) / 2), Value: buf}
}

// Float builds a FLOAT field.
func (b *Builder) Float(tag uint16, v ...float32) Field {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		b.order.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return Field{Tag: tag, Type: tiff.Float, Count: uint32(len(v)), Value: buf}
}

// Raw builds a field of an arbitrary type, including unknown ones.
func (b *Builder) Raw(tag uint16, typ tiff.DataType, count uint32, value []byte) Field {
	return Field{Tag: tag, Type: typ, Count: count, Value: value}
}

// NikonMakerNote wraps the directory described by fields in a Nikon type 3
// MakerNote: "Nikon\0", version, then an embedded TIFF header at byte 10
// whose IFD starts at byte 18.
func NikonMakerNote(order binary.ByteOrder, fields func(*Builder) []Field) []byte {
	inner := New(order)
	inner.SetFirst(inner.AppendIFD(fields(inner), 0))
	return append([]byte("Nikon\x00\x02\x10\x00\x00"), inner.Bytes()...)
}
