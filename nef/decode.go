package nef

import (
	"encoding/binary"
	"fmt"
)

// RawSize returns the number of bytes ReadRaw writes for img.
func (f *File) RawSize(img *Image) (int, error) {
	if err := f.checkImage(img); err != nil {
		return 0, err
	}
	a := img.attrs
	return a.Width * a.Height * a.Chans * a.BytesPerSample(), nil
}

// ReadRaw decodes the whole of img into buf: one byte per sample for
// images of up to 8 bits, otherwise two bytes little-endian.
func (f *File) ReadRaw(img *Image, buf []byte) error {
	size, err := f.RawSize(img)
	if err != nil {
		return err
	}
	if len(buf) < size {
		return fmt.Errorf("nef: read raw: buffer holds %d bytes, need %d: %w", len(buf), size, ErrRange)
	}
	samples, err := f.Samples(img)
	if err != nil {
		return err
	}
	if img.attrs.BytesPerSample() == 1 {
		for i, v := range samples.Pix {
			buf[i] = byte(v)
		}
		return nil
	}
	for i, v := range samples.Pix {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	return nil
}

// Samples decodes the whole of img.
func (f *File) Samples(img *Image) (*RawImage, error) {
	if err := f.checkImage(img); err != nil {
		return nil, err
	}
	a := img.attrs
	return f.window(img, 0, 0, a.Width, a.Height)
}

// TileSize returns the natural decode unit of img. Nikon-compressed images
// decode as a single full-frame tile.
func (f *File) TileSize(img *Image) (w, h int, err error) {
	if err := f.checkImage(img); err != nil {
		return 0, 0, err
	}
	dec, err := f.decoder(img)
	if err != nil {
		return 0, 0, err
	}
	w, h = dec.TileSize()
	return w, h, nil
}

// ReadTile decodes tile (col, row) of img. Edge tiles are clipped to the
// image.
func (f *File) ReadTile(img *Image, col, row int) (*RawImage, error) {
	tw, th, err := f.TileSize(img)
	if err != nil {
		return nil, err
	}
	a := img.attrs
	x, y := col*tw, row*th
	if col < 0 || row < 0 || x >= a.Width || y >= a.Height {
		return nil, fmt.Errorf("nef: tile %d,%d outside %dx%d image: %w", col, row, a.Width, a.Height, ErrRange)
	}
	return f.window(img, x, y, min(tw, a.Width-x), min(th, a.Height-y))
}

// window decodes an in-bounds rectangle of img.
func (f *File) window(img *Image, x, y, w, h int) (*RawImage, error) {
	dec, err := f.decoder(img)
	if err != nil {
		return nil, err
	}
	a := img.attrs
	out := &RawImage{
		Width:         w,
		Height:        h,
		Chans:         a.Chans,
		BitsPerSample: a.BitsPerSample,
		Pix:           make([]uint16, w*h*a.Chans),
	}
	if err := dec.ReadTile(x, y, w, h, out.Pix); err != nil {
		return nil, translate(fmt.Sprintf("nef: image %d", img.index), err)
	}
	return out, nil
}

func (f *File) checkImage(img *Image) error {
	if err := f.check(); err != nil {
		return err
	}
	if img == nil || img.file != f {
		return fmt.Errorf("nef: image does not belong to this file: %w", ErrBadArgument)
	}
	return nil
}

// decoder returns img's decoder, selecting a reader and preparing its state
// on first use.
func (f *File) decoder(img *Image) (TileDecoder, error) {
	if img.dec != nil {
		return img.dec, nil
	}
	if img.reader == nil {
		r, err := selectImageReader(img)
		if err != nil {
			return nil, fmt.Errorf("nef: image %d: %w", img.index, err)
		}
		img.reader = r
		debugf("image %d: using %s", img.index, r.Name())
	}
	src, err := f.source(img)
	if err != nil {
		return nil, fmt.Errorf("nef: image %d: %w", img.index, err)
	}
	dec, err := img.reader.NewDecoder(src)
	if err != nil {
		return nil, fmt.Errorf("nef: image %d: %w", img.index, err)
	}
	img.dec = dec
	return dec, nil
}

// source gathers the byte ranges holding img's data. Images without strip
// tags fall back to the JPEG interchange tags.
func (f *File) source(img *Image) (*Source, error) {
	dir := img.Directory()
	src := &Source{
		Image:     img,
		Dir:       dir,
		MakerNote: f.MakerNote(),
		Order:     dir.Order(),
	}

	offTag, lenTag := uint16(tagStripOffsets), uint16(tagStripByteCounts)
	if !dir.Has(tagStripOffsets) {
		offTag, lenTag = tagJPEGOffset, tagJPEGLength
	}
	offsets, err := dir.Uints(offTag)
	if err != nil {
		return nil, fmt.Errorf("strip offsets: %w", err)
	}
	counts, err := dir.Uints(lenTag)
	if err != nil {
		return nil, fmt.Errorf("strip byte counts: %w", err)
	}
	if len(offsets) != len(counts) {
		return nil, fmt.Errorf("%d strip offsets, %d byte counts: %w", len(offsets), len(counts), ErrRange)
	}
	src.Strips = make([][]byte, len(offsets))
	for i := range offsets {
		b, err := f.c.Slice(int64(offsets[i]), int64(counts[i]))
		if err != nil {
			return nil, wrap(ErrRange, fmt.Sprintf("strip %d", i), err)
		}
		src.Strips[i] = b
	}
	return src, nil
}
