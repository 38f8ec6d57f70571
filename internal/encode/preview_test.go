package encode

import (
	"image"
	"testing"

	"github.com/pspoerri/nefko/nef"
)

func TestPreview(t *testing.T) {
	t.Run("gray", func(t *testing.T) {
		r := &nef.RawImage{Width: 3, Height: 1, Chans: 1, BitsPerSample: 12, Pix: []uint16{0, 4095, 2048}}
		img, ok := Preview(r).(*image.Gray)
		if !ok {
			t.Fatalf("Preview of one channel is %T, want *image.Gray", Preview(r))
		}
		want := []uint8{0, 255, 127}
		for x, w := range want {
			if got := img.GrayAt(x, 0).Y; got != w {
				t.Errorf("pixel %d = %d, want %d", x, got, w)
			}
		}
	})

	t.Run("rgb", func(t *testing.T) {
		r := &nef.RawImage{Width: 2, Height: 1, Chans: 3, BitsPerSample: 8, Pix: []uint16{255, 0, 10, 1, 2, 3}}
		img, ok := Preview(r).(*image.RGBA)
		if !ok {
			t.Fatalf("Preview of three channels is %T, want *image.RGBA", Preview(r))
		}
		if c := img.RGBAAt(0, 0); c.R != 255 || c.G != 0 || c.B != 10 || c.A != 255 {
			t.Errorf("pixel 0 = %v", c)
		}
		if c := img.RGBAAt(1, 0); c.R != 1 || c.G != 2 || c.B != 3 {
			t.Errorf("pixel 1 = %v", c)
		}
	})

	t.Run("16-bit", func(t *testing.T) {
		r := &nef.RawImage{Width: 1, Height: 1, Chans: 1, BitsPerSample: 16, Pix: []uint16{0xffff}}
		if got := Preview(r).(*image.Gray).Pix[0]; got != 255 {
			t.Errorf("full-scale sample = %d, want 255", got)
		}
	})
}
