// Package npctest produces Nikon-compressed streams and decode tables for
// tests. The encoder only emits symbols without a lossy shift, which every
// built-in table carries for small differences.
package npctest

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/pspoerri/nefko/internal/npc"
)

// TableSpec describes a MakerNote decode table.
type TableSpec struct {
	Ver0, Ver1 byte
	VPred      [4]uint16
	Curve      []uint16 // stored curve samples
	Split      uint16   // written at offset 562 for version 0x44 0x20
}

// Lossless returns the spec of a lossless table with the given predictors.
func Lossless(vpred [4]uint16) TableSpec {
	return TableSpec{Ver0: 0x46, Ver1: 0x30, VPred: vpred}
}

// Bytes serializes the table in order.
func (s TableSpec) Bytes(order binary.ByteOrder) []byte {
	buf := []byte{s.Ver0, s.Ver1}
	if s.Ver0 == 0x49 || s.Ver1 == 0x58 {
		buf = append(buf, make([]byte, 2110)...)
	}
	put := func(v uint16) {
		buf = order.(binary.AppendByteOrder).AppendUint16(buf, v)
	}
	for _, v := range s.VPred {
		put(v)
	}
	put(uint16(len(s.Curve)))
	for _, v := range s.Curve {
		put(v)
	}
	if s.Ver0 == 0x44 && s.Ver1 == 0x20 {
		if len(buf) < 562 {
			buf = append(buf, make([]byte, 562-len(buf))...)
		}
		buf = buf[:562]
		put(s.Split)
	}
	return buf
}

// Encode compresses values, the pre-curve predictor targets of a
// width x height image in row-major order, for the given table.
func Encode(t *npc.Table, width, height int, values []uint16) ([]byte, error) {
	if len(values) != width*height {
		return nil, fmt.Errorf("npctest: %d values for %dx%d image", len(values), width, height)
	}
	codes := codeMap(npc.Codes(t.Tree))
	var w bitWriter
	vpred := t.VPred
	var hpred [2]uint16

	for r := 0; r < height; r++ {
		if t.Split > 0 && r == t.Split {
			codes = codeMap(npc.Codes(t.Tree + 1))
		}
		for col := 0; col < width; col++ {
			target := values[r*width+col]
			var pred uint16
			if col < 2 {
				p := (r&1)*2 + col
				pred = vpred[p]
				vpred[p] = target
				hpred[col] = target
			} else {
				pred = hpred[col&1]
				hpred[col&1] = target
			}

			diff := int32(target) - int32(pred)
			n, m := magnitude(diff)
			c, ok := codes[uint8(n)]
			if !ok {
				return nil, fmt.Errorf("npctest: no code for difference length %d (row %d col %d)", n, r, col)
			}
			w.write(uint32(c.Bits>>(16-c.Len)), int(c.Len))
			w.write(m, n)
		}
	}
	return w.bytes(), nil
}

// magnitude returns the bit length and stored magnitude of diff.
func magnitude(diff int32) (int, uint32) {
	switch {
	case diff == 0:
		return 0, 0
	case diff > 0:
		return bits.Len32(uint32(diff)), uint32(diff)
	default:
		n := bits.Len32(uint32(-diff))
		return n, uint32(diff + 1<<n - 1)
	}
}

func codeMap(codes []npc.Code) map[uint8]npc.Code {
	m := make(map[uint8]npc.Code)
	for _, c := range codes {
		if c.Symbol>>4 != 0 {
			continue
		}
		if _, dup := m[c.Symbol]; !dup {
			m[c.Symbol] = c
		}
	}
	return m
}

// bitWriter packs values most-significant bit first.
type bitWriter struct {
	buf   []byte
	acc   uint64
	nbits int
}

func (w *bitWriter) write(v uint32, n int) {
	for n > 0 {
		take := n
		if take > 8 {
			take = 8
		}
		n -= take
		w.acc = w.acc<<uint(take) | uint64(v>>uint(n))&(1<<uint(take)-1)
		w.nbits += take
		for w.nbits >= 8 {
			w.nbits -= 8
			w.buf = append(w.buf, byte(w.acc>>uint(w.nbits)))
		}
	}
}

func (w *bitWriter) bytes() []byte {
	out := append([]byte(nil), w.buf...)
	if w.nbits > 0 {
		out = append(out, byte(w.acc<<uint(8-w.nbits)))
	}
	return out
}

// Pack concatenates {value, width} fields into a byte stream, first field
// in the most significant bits. The last byte is zero padded.
func Pack(fields ...[2]uint32) []byte {
	var w bitWriter
	for _, f := range fields {
		w.write(f[0], int(f[1]))
	}
	return w.bytes()
}
