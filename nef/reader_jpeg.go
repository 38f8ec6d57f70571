package nef

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// TIFF compression codes for JPEG previews.
const (
	compressionOldJPEG = 6
	compressionJPEG    = 7
)

// jpegReader decodes the embedded JPEG previews Nikon stores next to the
// raw frame.
type jpegReader struct{}

func (jpegReader) Name() string { return "JPEG preview" }

func (jpegReader) CanOpen(img *Image) bool {
	c := img.attrs.Compression
	return c == compressionOldJPEG || c == compressionJPEG
}

func (jpegReader) NewDecoder(src *Source) (TileDecoder, error) {
	return &jpegDecoder{src: src, attrs: src.Image.attrs}, nil
}

type jpegDecoder struct {
	src   *Source
	attrs Attributes
	pix   []uint16
}

func (d *jpegDecoder) TileSize() (w, h int) {
	return d.attrs.Width, d.attrs.Height
}

func (d *jpegDecoder) ReadTile(x, y, w, h int, dst []uint16) error {
	if d.src == nil {
		return fmt.Errorf("jpeg decoder closed: %w", ErrBadArgument)
	}
	a := d.attrs
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > a.Width || y+h > a.Height {
		return fmt.Errorf("window %d,%d %dx%d outside %dx%d image: %w", x, y, w, h, a.Width, a.Height, ErrRange)
	}
	if len(dst) < w*h*a.Chans {
		return fmt.Errorf("destination holds %d samples, need %d: %w", len(dst), w*h*a.Chans, ErrRange)
	}
	if d.pix == nil {
		if err := d.decode(); err != nil {
			return err
		}
	}
	rowLen := a.Width * a.Chans
	for r := 0; r < h; r++ {
		start := (y+r)*rowLen + x*a.Chans
		copy(dst[r*w*a.Chans:(r+1)*w*a.Chans], d.pix[start:start+w*a.Chans])
	}
	return nil
}

// decode expands the JPEG into 8-bit samples. Pixels outside the decoded
// bounds stay zero.
func (d *jpegDecoder) decode() error {
	img, err := jpeg.Decode(bytes.NewReader(d.src.Bytes()))
	if err != nil {
		return fmt.Errorf("decoding JPEG: %w: %w", ErrFailure, err)
	}
	a := d.attrs
	b := img.Bounds()
	pix := make([]uint16, a.Width*a.Height*a.Chans)
	for y := 0; y < a.Height && y < b.Dy(); y++ {
		for x := 0; x < a.Width && x < b.Dx(); x++ {
			off := (y*a.Width + x) * a.Chans
			setSamples(pix[off:off+a.Chans], img, b.Min.X+x, b.Min.Y+y)
		}
	}
	d.pix = pix
	return nil
}

// setSamples writes the 8-bit channels of one pixel. Grayscale targets take
// luma; three or more channels take R, G, B.
func setSamples(dst []uint16, img image.Image, x, y int) {
	if g, ok := img.(*image.Gray); ok {
		v := uint16(g.GrayAt(x, y).Y)
		for i := range dst {
			dst[i] = v
		}
		return
	}
	r, g, b, _ := img.At(x, y).RGBA()
	rgb := [3]uint16{uint16(r >> 8), uint16(g >> 8), uint16(b >> 8)}
	if len(dst) == 1 {
		dst[0] = uint16((19595*uint32(rgb[0]) + 38470*uint32(rgb[1]) + 7471*uint32(rgb[2]) + 1<<15) >> 16)
		return
	}
	for i := range dst {
		if i < 3 {
			dst[i] = rgb[i]
		}
	}
}

func (d *jpegDecoder) Close() error {
	d.src = nil
	d.pix = nil
	return nil
}
