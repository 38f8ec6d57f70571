package npc

import "errors"

// ErrExhausted is returned when a read runs past the end of the buffer.
var ErrExhausted = errors.New("npc: bit stream exhausted")

// BitIterator reads a byte buffer most-significant bit first.
type BitIterator struct {
	buf []byte
	pos int  // index of the next byte to load
	cur byte // cached byte
	bit uint // bits of cur already consumed, 0-8
}

// NewBitIterator returns an iterator positioned at the first bit of buf.
func NewBitIterator(buf []byte) *BitIterator {
	return &BitIterator{buf: buf, bit: 8}
}

// Bit returns the next bit.
func (it *BitIterator) Bit() (uint32, error) {
	if it.bit == 8 {
		if it.pos >= len(it.buf) {
			return 0, ErrExhausted
		}
		it.cur = it.buf[it.pos]
		it.pos++
		it.bit = 0
	}
	v := uint32(it.cur>>(7-it.bit)) & 1
	it.bit++
	return v, nil
}

// Bits returns the next n bits (n <= 32) as an unsigned value, first bit
// most significant. On exhaustion the bits consumed so far are lost.
func (it *BitIterator) Bits(n int) (uint32, error) {
	if n < 0 || n > 32 {
		return 0, errors.New("npc: bit count out of range")
	}
	var v uint32
	for n > 0 {
		if it.bit == 8 {
			if it.pos >= len(it.buf) {
				return 0, ErrExhausted
			}
			it.cur = it.buf[it.pos]
			it.pos++
			it.bit = 0
		}
		// Take as many bits as remain in the cached byte.
		avail := int(8 - it.bit)
		take := avail
		if take > n {
			take = n
		}
		chunk := uint32(it.cur>>(uint(avail-take))) & (1<<uint(take) - 1)
		v = v<<uint(take) | chunk
		it.bit += uint(take)
		n -= take
	}
	return v, nil
}

// Offset returns the number of whole bytes loaded so far.
func (it *BitIterator) Offset() int {
	return it.pos
}

// Reset rewinds the iterator to the start of its buffer.
func (it *BitIterator) Reset() {
	it.pos, it.cur, it.bit = 0, 0, 8
}
