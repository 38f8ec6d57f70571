package nef

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pspoerri/nefko/internal/tiff"
)

// Nikon type 3 MakerNote layout: "Nikon\0", a 4-byte version, then a
// complete TIFF header whose offsets are relative to its own start.
const (
	makerNoteMagic     = "Nikon"
	makerNoteTIFFStart = 10
	makerNoteIFDStart  = 18
)

// makerNoteOrder returns the byte order declared by the embedded TIFF
// header, falling back to fallback when the header is not "II" or "MM".
func makerNoteOrder(mn []byte, fallback binary.ByteOrder) binary.ByteOrder {
	switch string(mn[makerNoteTIFFStart : makerNoteTIFFStart+2]) {
	case "II":
		return binary.LittleEndian
	case "MM":
		return binary.BigEndian
	default:
		return fallback
	}
}

// parseMakerNote validates the MakerNote bytes and builds a directory over
// the embedded IFD. It returns the buffer the directory's offsets refer to.
func parseMakerNote(c *tiff.Container, mn []byte) (tiff.IFDHandle, []byte, error) {
	if len(mn) < makerNoteIFDStart+2 {
		return 0, nil, fmt.Errorf("MakerNote is %d bytes: %w", len(mn), ErrNotNEF)
	}
	if !bytes.Equal(mn[:len(makerNoteMagic)], []byte(makerNoteMagic)) {
		return 0, nil, fmt.Errorf("MakerNote magic %q: %w", mn[:len(makerNoteMagic)], ErrNotNEF)
	}
	order := makerNoteOrder(mn, c.ByteOrder())
	base := mn[makerNoteTIFFStart:]
	h, err := c.MakeIFD(base, makerNoteIFDStart-makerNoteTIFFStart, order)
	if err != nil {
		return 0, nil, wrap(ErrNotNEF, "MakerNote IFD", err)
	}
	return h, base, nil
}

// modelData fetches and decrypts the camera's model data tag, or returns
// nil when it is absent or cannot be decrypted.
func (f *File) modelData(tag uint16) []byte {
	b, err := f.decryptTag(tag)
	if err != nil {
		debugf("model data tag %#04x: %v", tag, err)
		return nil
	}
	return b
}

// DecryptTag returns MakerNote tag id with every byte after its 4-byte
// clear-text version prefix decrypted.
func (f *File) DecryptTag(id uint16) ([]byte, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.decryptTag(id)
}

func (f *File) decryptTag(id uint16) ([]byte, error) {
	mn := f.MakerNote()
	if mn == nil {
		return nil, fmt.Errorf("MakerNote: %w", ErrNotFound)
	}
	raw, err := mn.Bytes(id)
	if err != nil {
		return nil, err
	}
	if len(raw) <= 4 {
		return raw, nil
	}
	plain, err := f.obf.Decrypt(raw[4:])
	if err != nil {
		return nil, fmt.Errorf("tag %#04x: %w: %w", id, ErrNotFound, err)
	}
	return append(raw[:4:4], plain...), nil
}
