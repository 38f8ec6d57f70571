package nef

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// TileDecoder decodes the pixel data of one image. Samples are written
// chunky (channel-interleaved), one uint16 per sample.
type TileDecoder interface {
	// TileSize returns the natural decode unit.
	TileSize() (w, h int)
	// ReadTile decodes the window [x, x+w) x [y, y+h) into dst.
	ReadTile(x, y, w, h int, dst []uint16) error
	Close() error
}

// ImageReader handles one family of image encodings.
type ImageReader interface {
	Name() string
	// CanOpen reports whether the reader understands img.
	CanOpen(img *Image) bool
	// NewDecoder prepares per-image decode state.
	NewDecoder(src *Source) (TileDecoder, error)
}

// Source is what a reader gets to decode an image: its attributes and
// directory, the MakerNote, and the image's strip data.
type Source struct {
	Image     *Image
	Dir       *Directory
	MakerNote *Directory // nil when the file has none
	Order     binary.ByteOrder
	Strips    [][]byte // slices of the file, in strip order
}

// Bytes returns the strips as one contiguous stream.
func (s *Source) Bytes() []byte {
	if len(s.Strips) == 1 {
		return s.Strips[0]
	}
	n := 0
	for _, b := range s.Strips {
		n += len(b)
	}
	out := make([]byte, 0, n)
	for _, b := range s.Strips {
		out = append(out, b...)
	}
	return out
}

// registry is a process-wide, append-only, ordered list.
type registry[T any] struct {
	mu    sync.RWMutex
	items []T
}

func (r *registry[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, v)
}

func (r *registry[T]) list() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]T(nil), r.items...)
}

var imageReaders registry[ImageReader]

func init() {
	RegisterImageReader(nikonReader{})
	RegisterImageReader(stripReader{})
	RegisterImageReader(jpegReader{})
}

// RegisterImageReader appends r to the image-type registry. Readers are
// consulted in registration order. Register before opening files
// concurrently.
func RegisterImageReader(r ImageReader) error {
	if r == nil {
		return fmt.Errorf("register image reader: %w", ErrBadArgument)
	}
	imageReaders.add(r)
	return nil
}

// ImageReaders returns the registered readers in selection order.
func ImageReaders() []ImageReader {
	return imageReaders.list()
}

// selectImageReader returns the first registered reader accepting img.
func selectImageReader(img *Image) (ImageReader, error) {
	for _, r := range imageReaders.list() {
		if r.CanOpen(img) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("no reader for compression %d: %w", img.attrs.Compression, ErrNotFound)
}

// RawImage is a decoded block of samples.
type RawImage struct {
	Width, Height int
	Chans         int
	BitsPerSample int
	Pix           []uint16 // row-major, channel-interleaved
}

// At returns sample ch of the pixel at (x, y).
func (r *RawImage) At(x, y, ch int) uint16 {
	return r.Pix[(y*r.Width+x)*r.Chans+ch]
}

// Max returns the largest representable sample value.
func (r *RawImage) Max() uint16 {
	if r.BitsPerSample >= 16 || r.BitsPerSample <= 0 {
		return 0xFFFF
	}
	return uint16(1<<uint(r.BitsPerSample) - 1)
}
