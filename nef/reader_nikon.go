package nef

import (
	"fmt"

	"github.com/pspoerri/nefko/internal/npc"
)

// nikonReader decodes Nikon's proprietary compression. The decode table
// lives in the MakerNote.
type nikonReader struct{}

func (nikonReader) Name() string { return "Nikon NEF compressed" }

func (nikonReader) CanOpen(img *Image) bool {
	return img.attrs.Compression == npc.Compression
}

func (nikonReader) NewDecoder(src *Source) (TileDecoder, error) {
	if src.MakerNote == nil {
		return nil, fmt.Errorf("nikon decoder: no MakerNote: %w", ErrNotFound)
	}
	buf, err := src.MakerNote.Bytes(mnDecodeTable)
	if err != nil {
		return nil, fmt.Errorf("nikon decoder: decode table: %w", err)
	}
	a := src.Image.attrs
	table, err := npc.ParseTable(buf, src.MakerNote.Order(), a.BitsPerSample)
	if err != nil {
		return nil, translate("nikon decoder", err)
	}
	debugf("decode table version %#02x %#02x, tree %d, curve %d, split %d",
		table.Ver0, table.Ver1, table.Tree, table.CurveSize, table.Split)

	d, err := npc.NewDecoder(a.Width*a.Chans, a.Height, table, src.Bytes())
	if err != nil {
		return nil, translate("nikon decoder", err)
	}
	return &nikonDecoder{d: d, chans: a.Chans}, nil
}

// nikonDecoder maps pixel windows onto the sample stream, which treats
// each row as Width*Chans values.
type nikonDecoder struct {
	d     *npc.Decoder
	chans int
}

func (n *nikonDecoder) TileSize() (w, h int) {
	w, h = n.d.TileSize()
	return w / n.chans, h
}

func (n *nikonDecoder) ReadTile(x, y, w, h int, dst []uint16) error {
	if err := n.d.ReadTile(x*n.chans, y, w*n.chans, h, dst); err != nil {
		return err
	}
	if c := n.d.OutOfRange(); c > 0 {
		debugf("%d predictions out of range", c)
	}
	return nil
}

func (n *nikonDecoder) Close() error { return n.d.Close() }
