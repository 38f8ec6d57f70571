// Package npc decodes Nikon's proprietary raw compression (TIFF compression
// 34713): a Huffman-coded stream of prediction differences over a Bayer
// mosaic, optionally mapped through a linearization curve.
package npc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Compression is the TIFF compression code of the Nikon format.
const Compression = 34713

// ErrUnsupportedTable is returned for decode tables the decoder cannot handle.
var ErrUnsupportedTable = errors.New("npc: unsupported decode table")

const (
	curveLen    = 0x10000
	maxCurveLen = 0x4001
	splitOffset = 562
	skipV2      = 2110
)

// Table is the parsed MakerNote decode table (tag 0x0096).
type Table struct {
	Ver0, Ver1 byte
	Bits       int       // bits per sample, 12 or 14
	Tree       int       // index of the initial code table
	VPred      [4]uint16 // initial vertical predictors, row-major over the 2x2 CFA
	CurveSize  int       // number of curve entries stored in the table
	Split      int       // row at which lossy streams switch tables; 0 for none
	Curve      []uint16  // linearization curve, identity where unspecified
}

// Lossless reports whether the table describes a lossless stream.
func (t *Table) Lossless() bool {
	return t.Ver0 == 0x46
}

// ParseTable reads a decode table. order is the byte order of the
// MakerNote the table came from.
func ParseTable(buf []byte, order binary.ByteOrder, bps int) (*Table, error) {
	if bps != 12 && bps != 14 {
		return nil, fmt.Errorf("%d bits per sample: %w", bps, ErrUnsupportedTable)
	}
	r := tableReader{buf: buf, order: order}

	t := &Table{Bits: bps, Curve: make([]uint16, curveLen)}
	for i := range t.Curve {
		t.Curve[i] = uint16(i)
	}
	t.Ver0 = r.byte()
	t.Ver1 = r.byte()
	if t.Ver0 == 0x49 || t.Ver1 == 0x58 {
		r.skip(skipV2)
	}
	if t.Ver0 == 0x46 {
		t.Tree = treeLossless12
	}
	if bps == 14 {
		t.Tree += 3
	}
	for i := range t.VPred {
		t.VPred[i] = r.short()
	}

	limit := 1 << bps & 0x7fff
	t.CurveSize = int(r.short())
	step := 0
	if t.CurveSize > 1 {
		step = limit / (t.CurveSize - 1)
	}

	switch {
	case t.Ver0 == 0x44 && t.Ver1 == 0x20 && step > 0:
		// Sampled curve, linearly interpolated between samples.
		for i := 0; i < t.CurveSize; i++ {
			v := r.short()
			if i*step < curveLen {
				t.Curve[i*step] = v
			}
		}
		for i := 0; i < limit; i++ {
			lo := i - i%step
			hi := lo + step
			if hi >= curveLen {
				hi = curveLen - 1
			}
			t.Curve[i] = uint16((int(t.Curve[lo])*(step-i%step) + int(t.Curve[hi])*(i%step)) / step)
		}
		r.seek(splitOffset)
		t.Split = int(r.short())
	case t.Ver0 != 0x46:
		if t.CurveSize > maxCurveLen {
			return nil, fmt.Errorf("curve size %d: %w", t.CurveSize, ErrUnsupportedTable)
		}
		for i := 0; i < t.CurveSize; i++ {
			t.Curve[i] = r.short()
		}
	}

	if r.err != nil {
		return nil, fmt.Errorf("decode table version %#02x %#02x: %w", t.Ver0, t.Ver1, r.err)
	}
	return t, nil
}

// tableReader reads fixed-width values and records the first overrun.
type tableReader struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
	err   error
}

func (r *tableReader) byte() byte {
	if r.pos+1 > len(r.buf) {
		r.fail()
		return 0
	}
	b := r.buf[r.pos]
	r.pos++
	return b
}

func (r *tableReader) short() uint16 {
	if r.pos+2 > len(r.buf) {
		r.fail()
		return 0
	}
	v := r.order.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v
}

func (r *tableReader) skip(n int) { r.pos += n }
func (r *tableReader) seek(n int) { r.pos = n }

func (r *tableReader) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("truncated at byte %d of %d: %w", r.pos, len(r.buf), ErrUnsupportedTable)
	}
}

// Diff expands an n-bit magnitude m read after a symbol into a signed
// prediction difference. shift is the lossy shift carried in the symbol.
func Diff(m uint32, n, shift int) int32 {
	if n == 0 {
		return 0
	}
	diff := ((int32(m)<<1 + 1) << uint(shift)) >> 1
	if diff&(1<<uint(n-1)) == 0 {
		diff -= 1 << uint(n)
		if shift == 0 {
			diff++
		}
	}
	return diff
}

// Decoder decodes one Nikon-compressed image.
type Decoder struct {
	width, height int
	data          []byte
	table         *Table
	trees         [2]*Tree // initial and after-split

	it    *BitIterator
	vpred [4]uint16
	hpred [2]uint16

	// Predictions outside [-min, max-min) are counted, not rejected.
	min, max   int
	outOfRange int
}

// NewDecoder prepares a decoder for a width x height image whose
// compressed stream is data.
func NewDecoder(width, height int, table *Table, data []byte) (*Decoder, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("npc: invalid image size %dx%d", width, height)
	}
	d := &Decoder{width: width, height: height, data: data, table: table}

	var err error
	if d.trees[0], err = BuildTree(Codes(table.Tree)); err != nil {
		return nil, fmt.Errorf("building tree %d: %w", table.Tree, err)
	}
	if table.Split > 0 {
		if d.trees[1], err = BuildTree(Codes(table.Tree + 1)); err != nil {
			return nil, fmt.Errorf("building tree %d: %w", table.Tree+1, err)
		}
	}
	d.it = NewBitIterator(data)
	return d, nil
}

// TileSize returns the decode unit. Rows chain through the vertical
// predictors, so the only independent unit is the whole frame.
func (d *Decoder) TileSize() (w, h int) {
	return d.width, d.height
}

// ReadTile decodes the window [x, x+w) x [y, y+h) into dst, row-major.
// Decoding always restarts at the beginning of the stream.
func (d *Decoder) ReadTile(x, y, w, h int, dst []uint16) error {
	if d.it == nil {
		return errors.New("npc: decoder closed")
	}
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > d.width || y+h > d.height {
		return fmt.Errorf("npc: window %d,%d %dx%d outside %dx%d image", x, y, w, h, d.width, d.height)
	}
	if len(dst) < w*h {
		return fmt.Errorf("npc: destination holds %d samples, need %d", len(dst), w*h)
	}

	d.reset()
	row := make([]uint16, d.width)
	tree := d.trees[0]
	for r := 0; r < y+h; r++ {
		if d.table.Split > 0 && r == d.table.Split {
			tree = d.trees[1]
			d.min = 16
			d.max += 2 * d.min
		}
		if err := d.decodeRow(tree, r, row); err != nil {
			return fmt.Errorf("npc: row %d: %w", r, err)
		}
		if r >= y {
			copy(dst[(r-y)*w:(r-y+1)*w], row[x:x+w])
		}
	}
	return nil
}

func (d *Decoder) reset() {
	d.it.Reset()
	d.vpred = d.table.VPred
	d.hpred = [2]uint16{}
	d.min = 0
	d.max = 1 << uint(d.table.Bits) & 0x7fff
	d.outOfRange = 0
}

// OutOfRange returns how many predictions of the last ReadTile fell outside
// the sample range. A non-zero count usually means a corrupt stream.
func (d *Decoder) OutOfRange() int {
	return d.outOfRange
}

func (d *Decoder) decodeRow(tree *Tree, r int, out []uint16) error {
	curve := d.table.Curve
	for col := range out {
		sym, err := tree.Decode(d.it)
		if err != nil {
			return err
		}
		n := int(sym & 15)
		shift := int(sym >> 4)
		var m uint32
		if n > shift {
			if m, err = d.it.Bits(n - shift); err != nil {
				return err
			}
		}
		diff := uint16(Diff(m, n, shift))

		if col < 2 {
			p := (r&1)*2 + col
			d.vpred[p] += diff
			d.hpred[col] = d.vpred[p]
		} else {
			d.hpred[col&1] += diff
		}
		if int(uint16(int(d.hpred[col&1])+d.min)) >= d.max {
			d.outOfRange++
		}
		v := int16(d.hpred[col&1])
		switch {
		case v < 0:
			v = 0
		case v > 0x3fff:
			v = 0x3fff
		}
		out[col] = curve[v]
	}
	return nil
}

// Close releases the decoder's trees and stream.
func (d *Decoder) Close() error {
	d.trees = [2]*Tree{}
	d.it = nil
	d.data = nil
	return nil
}
