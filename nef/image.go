package nef

import (
	"fmt"

	"github.com/pspoerri/nefko/internal/tiff"
)

// ImageType is the role of an image within a NEF.
type ImageType int

const (
	// Reduced is a thumbnail or preview.
	Reduced ImageType = 0
	// Full is the full-resolution sensor image.
	Full ImageType = 1
)

func (t ImageType) String() string {
	if t == Full {
		return "full-resolution"
	}
	return "thumbnail"
}

// DataType is the sample format of an image.
type DataType int

const (
	DataTypeUnknown DataType = 0
	DataTypeUint    DataType = 1
)

// Attributes describes one image.
type Attributes struct {
	Width, Height int
	Chans         int
	Type          ImageType
	DataType      DataType
	BitsPerSample int
	Compression   int
	Photometric   int
}

// BytesPerSample is the width of one sample in ReadRaw output.
func (a Attributes) BytesPerSample() int {
	if a.BitsPerSample <= 8 {
		return 1
	}
	return 2
}

// Image is one picture in a NEF file. It refers to its directory by
// handle; the File owns the directory.
type Image struct {
	file  *File
	index int
	ifd   tiff.IFDHandle
	attrs Attributes

	reader ImageReader
	dec    TileDecoder
}

// Index returns the image's position in the file.
func (img *Image) Index() int { return img.index }

// Attributes returns the image's attributes.
func (img *Image) Attributes() Attributes { return img.attrs }

// Directory returns a view of the image's IFD.
func (img *Image) Directory() *Directory {
	return &Directory{c: img.file.c, h: img.ifd}
}

// populateImage reads an image's attributes from its directory.
func populateImage(c *tiff.Container, h tiff.IFDHandle) (Attributes, error) {
	var a Attributes
	var subfile uint32
	required := []struct {
		id   uint16
		dest *int
	}{
		{tagImageLength, &a.Height},
		{tagImageWidth, &a.Width},
		{tagSamplesPerPixel, &a.Chans},
	}
	for _, r := range required {
		if err := getTag(c, h, r.id, r.dest); err != nil {
			return a, err
		}
	}
	a.DataType = DataTypeUint

	if err := getTag(c, h, tagNewSubfileType, &subfile); err != nil {
		return a, err
	}
	if err := getTag(c, h, tagCompression, &a.Compression); err != nil {
		return a, err
	}

	switch {
	case subfile&1 != 0:
		a.Type = Reduced
	case subfile == 0:
		a.Type = Full
	default:
		debugf("unknown NewSubfileType %#08x, treating as reduced", subfile)
		a.Type = Reduced
	}

	if err := getTag(c, h, tagBitsPerSample, &a.BitsPerSample); err != nil {
		a.BitsPerSample = 1
	}
	if err := getTag(c, h, tagPhotometric, &a.Photometric); err != nil {
		debugf("no PhotometricInterpretation, assuming planar")
		a.Photometric = 0
	}

	if a.Width <= 0 || a.Height <= 0 || a.Chans <= 0 {
		return a, fmt.Errorf("image %dx%d with %d channels: %w", a.Width, a.Height, a.Chans, ErrRange)
	}
	debugf("image %dx%d, %d channels, %d bits (%s), compression %d, photometric %d",
		a.Width, a.Height, a.Chans, a.BitsPerSample, a.Type, a.Compression, a.Photometric)
	return a, nil
}
