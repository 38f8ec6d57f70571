package encode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/pspoerri/nefko/nef"
)

// Raw sample dumps are a zstd stream of a 16-byte header followed by the
// samples as little-endian uint16, row-major and channel-interleaved.
const (
	rawMagic      = "NKRW"
	rawHeaderSize = 16
	// RawExtension is the file extension of raw sample dumps.
	RawExtension = ".raw.zst"

	maxRawSamples = 1 << 28
)

var errBadRawHeader = errors.New("encode: not a raw sample dump")

var zstdEncPool = sync.Pool{
	New: func() any {
		return must(zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)))
	},
}

// must panics on errors that only a programming mistake, such as an
// invalid encoder option, can produce.
func must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("encode: %v", err))
	}
	return v
}

// EncodeRaw serializes r as a compressed raw sample dump.
func EncodeRaw(r *nef.RawImage) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteRaw(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteRaw writes r to w as a compressed raw sample dump.
func WriteRaw(w io.Writer, r *nef.RawImage) error {
	if len(r.Pix) != r.Width*r.Height*r.Chans {
		return fmt.Errorf("encode: raw image has %d samples, want %d", len(r.Pix), r.Width*r.Height*r.Chans)
	}
	hdr := make([]byte, rawHeaderSize)
	copy(hdr, rawMagic)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(r.Width))
	binary.LittleEndian.PutUint32(hdr[8:], uint32(r.Height))
	binary.LittleEndian.PutUint16(hdr[12:], uint16(r.Chans))
	binary.LittleEndian.PutUint16(hdr[14:], uint16(r.BitsPerSample))

	data := make([]byte, 2*len(r.Pix))
	for i, v := range r.Pix {
		binary.LittleEndian.PutUint16(data[2*i:], v)
	}

	enc := zstdEncPool.Get().(*zstd.Encoder)
	defer zstdEncPool.Put(enc)
	enc.Reset(w)
	if _, err := enc.Write(hdr); err != nil {
		enc.Close()
		return fmt.Errorf("zstd encode: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return fmt.Errorf("zstd encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("zstd encode: %w", err)
	}
	return nil
}

// ReadRaw decodes a raw sample dump.
func ReadRaw(rd io.Reader) (*nef.RawImage, error) {
	dec, err := zstd.NewReader(rd)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	defer dec.Close()

	hdr := make([]byte, rawHeaderSize)
	if _, err := io.ReadFull(dec, hdr); err != nil {
		return nil, fmt.Errorf("reading raw header: %w", err)
	}
	if string(hdr[:4]) != rawMagic {
		return nil, errBadRawHeader
	}
	r := &nef.RawImage{
		Width:         int(binary.LittleEndian.Uint32(hdr[4:])),
		Height:        int(binary.LittleEndian.Uint32(hdr[8:])),
		Chans:         int(binary.LittleEndian.Uint16(hdr[12:])),
		BitsPerSample: int(binary.LittleEndian.Uint16(hdr[14:])),
	}
	n := r.Width * r.Height * r.Chans
	if n <= 0 || n > maxRawSamples {
		return nil, fmt.Errorf("%w: %dx%d with %d channels", errBadRawHeader, r.Width, r.Height, r.Chans)
	}
	data := make([]byte, 2*n)
	if _, err := io.ReadFull(dec, data); err != nil {
		return nil, fmt.Errorf("reading %d samples: %w", n, err)
	}
	r.Pix = make([]uint16, n)
	for i := range r.Pix {
		r.Pix[i] = binary.LittleEndian.Uint16(data[2*i:])
	}
	return r, nil
}
