package encode

import (
	"image"
	"image/color"

	"github.com/pspoerri/nefko/nef"
)

// Preview scales raw samples linearly to 8 bits. One- and two-channel
// images become grayscale from their first channel; three or more
// channels become opaque RGB. No demosaicing or colour correction is
// applied.
func Preview(r *nef.RawImage) image.Image {
	rect := image.Rect(0, 0, r.Width, r.Height)
	limit := uint32(r.Max())
	scale := func(v uint16) uint8 {
		if uint32(v) >= limit {
			return 255
		}
		return uint8(uint32(v) * 255 / limit)
	}

	if r.Chans < 3 {
		img := image.NewGray(rect)
		for y := 0; y < r.Height; y++ {
			for x := 0; x < r.Width; x++ {
				img.Pix[y*img.Stride+x] = scale(r.At(x, y, 0))
			}
		}
		return img
	}

	img := image.NewRGBA(rect)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: scale(r.At(x, y, 0)),
				G: scale(r.At(x, y, 1)),
				B: scale(r.At(x, y, 2)),
				A: 255,
			})
		}
	}
	return img
}
