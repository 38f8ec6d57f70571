package npc

// Tree indices into nikonTrees.
const (
	treeLossy12 = iota
	treeLossy12Split
	treeLossless12
	treeLossy14
	treeLossy14Split
	treeLossless14
)

// nikonTrees holds the built-in code tables in JPEG DHT layout: sixteen
// counts of codes per length (1..16) followed by the symbols in code order.
// A symbol's low nibble is the difference length, its high nibble the
// lossy shift.
var nikonTrees = [6][32]byte{
	{0, 1, 5, 1, 1, 1, 1, 1, 1, 2, 0, 0, 0, 0, 0, 0, // 12-bit lossy
		5, 4, 3, 6, 2, 7, 1, 0, 8, 9, 11, 10, 12},
	{0, 1, 5, 1, 1, 1, 1, 1, 1, 2, 0, 0, 0, 0, 0, 0, // 12-bit lossy after split
		0x39, 0x5a, 0x38, 0x27, 0x16, 5, 4, 3, 2, 1, 0, 11, 12, 12},
	{0, 1, 4, 2, 3, 1, 2, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 12-bit lossless
		5, 4, 6, 3, 7, 2, 8, 1, 9, 0, 10, 11, 12},
	{0, 1, 4, 3, 1, 1, 1, 1, 1, 2, 0, 0, 0, 0, 0, 0, // 14-bit lossy
		5, 6, 4, 7, 8, 3, 9, 2, 1, 0, 10, 11, 12, 13, 14},
	{0, 1, 5, 1, 1, 1, 1, 1, 1, 1, 2, 0, 0, 0, 0, 0, // 14-bit lossy after split
		8, 0x5c, 0x4b, 0x3a, 0x29, 7, 6, 5, 4, 3, 2, 1, 0, 13, 14},
	{0, 1, 4, 2, 2, 3, 1, 2, 0, 0, 0, 0, 0, 0, 0, 0, // 14-bit lossless
		7, 6, 8, 5, 9, 4, 10, 3, 11, 12, 2, 0, 1, 13, 14},
}

// canonicalCodes assigns canonical Huffman codes to a DHT-style table:
// codes of each length are consecutive, and the first code of length n+1 is
// one past the last code of length n, shifted left.
func canonicalCodes(table []byte) []Code {
	var codes []Code
	sym := 16
	code := uint16(0)
	for n := 1; n <= 16; n++ {
		for i := 0; i < int(table[n-1]); i++ {
			var s byte
			if sym < len(table) {
				s = table[sym]
			}
			sym++
			codes = append(codes, Code{Len: uint8(n), Bits: code << (16 - n), Symbol: s})
			code++
		}
		code <<= 1
	}
	return codes
}

// Codes returns the canonical codes of built-in table i, as selected by
// Table.Tree and Table.Tree+1 after a split.
func Codes(i int) []Code {
	return canonicalCodes(nikonTrees[i][:])
}
