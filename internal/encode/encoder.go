package encode

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"sync"

	"github.com/gen2brain/webp"
)

const defaultQuality = 85

// Encoder encodes a preview image.
type Encoder interface {
	// Encode encodes an image to bytes in the output format.
	Encode(img image.Image) ([]byte, error)

	// Format returns the format name (e.g. "jpeg", "png", "webp").
	Format() string

	// FileExtension returns the appropriate file extension.
	FileExtension() string
}

// NewEncoder creates an encoder for the given format and quality. Quality
// is ignored by PNG; a WebP quality of 100 selects lossless WebP.
func NewEncoder(format string, quality int) (Encoder, error) {
	if quality <= 0 {
		quality = defaultQuality
	}
	switch format {
	case "jpeg", "jpg":
		return &JPEGEncoder{Quality: quality}, nil
	case "png":
		return &PNGEncoder{}, nil
	case "webp":
		return &WebPEncoder{Quality: quality, Lossless: quality >= 100}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %q (supported: jpeg, png, webp)", format)
	}
}

// Previews of full-resolution images run to tens of megabytes, so output
// buffers are reused across files.
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// encodeWith runs write against a pooled buffer and returns a copy of the
// result.
func encodeWith(write func(*bytes.Buffer) error) ([]byte, error) {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)
	if err := write(buf); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

// JPEGEncoder encodes previews as JPEG.
type JPEGEncoder struct {
	Quality int // 1-100, default 85
}

func (e *JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	quality := e.Quality
	if quality <= 0 {
		quality = defaultQuality
	}
	return encodeWith(func(buf *bytes.Buffer) error {
		return jpeg.Encode(buf, img, &jpeg.Options{Quality: quality})
	})
}

func (e *JPEGEncoder) Format() string        { return "jpeg" }
func (e *JPEGEncoder) FileExtension() string { return ".jpg" }

// PNGEncoder encodes previews as PNG.
type PNGEncoder struct{}

var pngEncoder = &png.Encoder{CompressionLevel: png.BestSpeed}

func (e *PNGEncoder) Encode(img image.Image) ([]byte, error) {
	return encodeWith(func(buf *bytes.Buffer) error {
		return pngEncoder.Encode(buf, img)
	})
}

func (e *PNGEncoder) Format() string        { return "png" }
func (e *PNGEncoder) FileExtension() string { return ".png" }

// WebPEncoder encodes previews as WebP. gen2brain/webp uses a system
// libwebp through purego when present and its WASM build otherwise.
type WebPEncoder struct {
	Quality  int
	Lossless bool
}

func (e *WebPEncoder) Encode(img image.Image) ([]byte, error) {
	opts := webp.Options{Quality: e.Quality, Lossless: e.Lossless}
	return encodeWith(func(buf *bytes.Buffer) error {
		return webp.Encode(buf, img, opts)
	})
}

func (e *WebPEncoder) Format() string        { return "webp" }
func (e *WebPEncoder) FileExtension() string { return ".webp" }
