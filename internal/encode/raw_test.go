package encode

import (
	"bytes"
	"errors"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/pspoerri/nefko/nef"
)

func TestRaw_RoundTrip(t *testing.T) {
	src := &nef.RawImage{Width: 7, Height: 3, Chans: 1, BitsPerSample: 14}
	src.Pix = make([]uint16, 21)
	for i := range src.Pix {
		src.Pix[i] = uint16(i * 701 % (1 << 14))
	}

	data, err := EncodeRaw(src)
	if err != nil {
		t.Fatalf("EncodeRaw: %v", err)
	}
	got, err := ReadRaw(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}
	if got.Width != 7 || got.Height != 3 || got.Chans != 1 || got.BitsPerSample != 14 {
		t.Errorf("header = %dx%d x%d %d-bit", got.Width, got.Height, got.Chans, got.BitsPerSample)
	}
	for i := range src.Pix {
		if got.Pix[i] != src.Pix[i] {
			t.Fatalf("sample %d = %d, want %d", i, got.Pix[i], src.Pix[i])
		}
	}

	// The pooled encoder must be reusable.
	again, err := EncodeRaw(src)
	if err != nil {
		t.Fatalf("second EncodeRaw: %v", err)
	}
	if !bytes.Equal(again, data) {
		t.Error("re-encoding produced different output")
	}
}

func TestRaw_Errors(t *testing.T) {
	if _, err := EncodeRaw(&nef.RawImage{Width: 2, Height: 2, Chans: 1, Pix: make([]uint16, 3)}); err == nil {
		t.Error("EncodeRaw accepted a short sample slice")
	}

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	zw.Write([]byte("NOPE0000000000000000"))
	zw.Close()
	if _, err := ReadRaw(&buf); !errors.Is(err, errBadRawHeader) {
		t.Errorf("ReadRaw(bad magic) error = %v, want errBadRawHeader", err)
	}

	if _, err := ReadRaw(bytes.NewReader([]byte("not zstd at all"))); err == nil {
		t.Error("ReadRaw accepted uncompressed data")
	}
}

func TestMust(t *testing.T) {
	if got := must(3, nil); got != 3 {
		t.Errorf("must(3, nil) = %d", got)
	}
	_, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(0))
	if err == nil {
		t.Skip("zstd accepted an invalid option")
	}
	defer func() {
		if recover() == nil {
			t.Error("must did not panic on a constructor error")
		}
	}()
	must(zstd.NewWriter(nil, zstd.WithEncoderConcurrency(0)))
}
