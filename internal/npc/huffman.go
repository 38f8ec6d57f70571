package npc

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedTable is returned when a code set does not describe a prefix code.
	ErrMalformedTable = errors.New("npc: malformed Huffman table")
	// ErrMalformedStream is returned when the stream follows a branch the tree lacks.
	ErrMalformedStream = errors.New("npc: malformed Huffman stream")
)

// Code is one Huffman code. Bits holds the code left-aligned: bit 15 is the
// first branch taken from the root.
type Code struct {
	Len    uint8
	Bits   uint16
	Symbol uint8
}

// node children are indices into Tree.nodes; 0 means no child, which is
// unambiguous because the root (index 0) is never a child.
type node struct {
	child  [2]int32
	leaf   bool
	symbol uint8
}

// Tree is a binary decode tree stored as a flat slice of nodes.
type Tree struct {
	nodes []node
}

// BuildTree inserts every code into a fresh tree. Zero-length codes are
// skipped.
func BuildTree(codes []Code) (*Tree, error) {
	t := &Tree{nodes: make([]node, 1, 2*len(codes)+1)}
	for _, c := range codes {
		if c.Len == 0 {
			continue
		}
		if c.Len > 16 {
			return nil, fmt.Errorf("code for symbol %#x has length %d: %w", c.Symbol, c.Len, ErrMalformedTable)
		}
		if err := t.insert(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tree) insert(c Code) error {
	n := int32(0)
	for i := uint8(0); i < c.Len; i++ {
		if t.nodes[n].leaf {
			return fmt.Errorf("code for symbol %#x passes through a leaf: %w", c.Symbol, ErrMalformedTable)
		}
		b := (c.Bits >> (15 - i)) & 1
		next := t.nodes[n].child[b]
		if next == 0 {
			t.nodes = append(t.nodes, node{})
			next = int32(len(t.nodes) - 1)
			t.nodes[n].child[b] = next
		}
		n = next
	}
	nd := &t.nodes[n]
	if nd.leaf || nd.child[0] != 0 || nd.child[1] != 0 {
		return fmt.Errorf("code for symbol %#x collides with an existing code: %w", c.Symbol, ErrMalformedTable)
	}
	nd.leaf = true
	nd.symbol = c.Symbol
	return nil
}

// Decode walks the tree one bit at a time until it reaches a leaf.
func (t *Tree) Decode(it *BitIterator) (uint8, error) {
	n := int32(0)
	for !t.nodes[n].leaf {
		b, err := it.Bit()
		if err != nil {
			return 0, err
		}
		next := t.nodes[n].child[b]
		if next == 0 {
			return 0, ErrMalformedStream
		}
		n = next
	}
	return t.nodes[n].symbol, nil
}
