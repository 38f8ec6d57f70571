package nef

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff/lzw"

	"github.com/pspoerri/nefko/internal/npc"
)

// TIFF compression codes handled by stripReader.
const (
	compressionNone         = 1
	compressionLZW          = 5
	compressionDeflate      = 8
	compressionDeflateAdobe = 32946
)

// stripReader decodes uncompressed, LZW and Deflate strips holding 1-16
// bit unsigned samples. Rows are padded to a byte boundary.
type stripReader struct{}

func (stripReader) Name() string { return "TIFF strips" }

func (stripReader) CanOpen(img *Image) bool {
	switch img.attrs.Compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionDeflateAdobe:
		return img.attrs.BitsPerSample >= 1 && img.attrs.BitsPerSample <= 16
	}
	return false
}

func (stripReader) NewDecoder(src *Source) (TileDecoder, error) {
	return &stripDecoder{src: src, attrs: src.Image.attrs}, nil
}

// stripDecoder inflates every strip on first use and serves windows from
// the unpacked frame.
type stripDecoder struct {
	src   *Source
	attrs Attributes
	pix   []uint16
}

func (d *stripDecoder) TileSize() (w, h int) {
	return d.attrs.Width, d.attrs.Height
}

func (d *stripDecoder) ReadTile(x, y, w, h int, dst []uint16) error {
	if d.src == nil {
		return fmt.Errorf("strip decoder closed: %w", ErrBadArgument)
	}
	a := d.attrs
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > a.Width || y+h > a.Height {
		return fmt.Errorf("window %d,%d %dx%d outside %dx%d image: %w", x, y, w, h, a.Width, a.Height, ErrRange)
	}
	if len(dst) < w*h*a.Chans {
		return fmt.Errorf("destination holds %d samples, need %d: %w", len(dst), w*h*a.Chans, ErrRange)
	}
	if d.pix == nil {
		pix, err := d.unpack()
		if err != nil {
			return err
		}
		d.pix = pix
	}
	rowLen := a.Width * a.Chans
	for r := 0; r < h; r++ {
		start := (y+r)*rowLen + x*a.Chans
		copy(dst[r*w*a.Chans:(r+1)*w*a.Chans], d.pix[start:start+w*a.Chans])
	}
	return nil
}

func (d *stripDecoder) Close() error {
	d.src = nil
	d.pix = nil
	return nil
}

// inflate returns the concatenated, decompressed strip data.
func (d *stripDecoder) inflate() ([]byte, error) {
	var out bytes.Buffer
	for i, strip := range d.src.Strips {
		switch d.attrs.Compression {
		case compressionNone:
			out.Write(strip)
		case compressionLZW:
			r := lzw.NewReader(bytes.NewReader(strip), lzw.MSB, 8)
			_, err := io.Copy(&out, r)
			r.Close()
			if err != nil {
				return nil, fmt.Errorf("strip %d: lzw: %w: %w", i, ErrFailure, err)
			}
		case compressionDeflate, compressionDeflateAdobe:
			r, err := zlib.NewReader(bytes.NewReader(strip))
			if err != nil {
				return nil, fmt.Errorf("strip %d: deflate: %w: %w", i, ErrFailure, err)
			}
			_, err = io.Copy(&out, r)
			r.Close()
			if err != nil {
				return nil, fmt.Errorf("strip %d: deflate: %w: %w", i, ErrFailure, err)
			}
		}
	}
	return out.Bytes(), nil
}

// unpack converts the inflated stream into one uint16 per sample.
func (d *stripDecoder) unpack() ([]uint16, error) {
	data, err := d.inflate()
	if err != nil {
		return nil, err
	}
	a := d.attrs
	samplesPerRow := a.Width * a.Chans
	rowBytes := (samplesPerRow*a.BitsPerSample + 7) / 8
	// Uncompressed 12 and 14-bit frames may hold one sample per 16-bit word.
	wide := a.BitsPerSample > 8 && a.BitsPerSample < 16 && len(data) == samplesPerRow*2*a.Height
	if wide {
		rowBytes = samplesPerRow * 2
	}
	if len(data) < rowBytes*a.Height {
		return nil, fmt.Errorf("strips hold %d bytes, image needs %d: %w", len(data), rowBytes*a.Height, ErrRange)
	}

	pix := make([]uint16, samplesPerRow*a.Height)
	for r := 0; r < a.Height; r++ {
		row := data[r*rowBytes : (r+1)*rowBytes]
		out := pix[r*samplesPerRow : (r+1)*samplesPerRow]
		switch {
		case wide:
			unpack16(row, d.src.Order, out)
		case a.BitsPerSample == 8:
			for i := range out {
				out[i] = uint16(row[i])
			}
		case a.BitsPerSample == 16:
			unpack16(row, d.src.Order, out)
		default:
			it := npc.NewBitIterator(row)
			for i := range out {
				v, err := it.Bits(a.BitsPerSample)
				if err != nil {
					return nil, fmt.Errorf("row %d: %w: %w", r, ErrRange, err)
				}
				out[i] = uint16(v)
			}
		}
	}
	return pix, nil
}

func unpack16(row []byte, order binary.ByteOrder, out []uint16) {
	for i := range out {
		out[i] = order.Uint16(row[2*i:])
	}
}
