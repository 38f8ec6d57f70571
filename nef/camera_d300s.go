package nef

import (
	"fmt"
	"math"
)

// LensData version 0204 layout, offsets from the start of the tag.
const (
	d300sLensVersion = "0204"
	d300sLensPayload = 33
	d300sAFAperture  = 5
	d300sFocalLength = 11
	d300sLensID      = 12
	d300sMinFocal    = 14
	d300sMaxFocal    = 15
)

type d300s struct{}

func (d300s) Model() string        { return "NIKON D300S" }
func (d300s) ModelDataTag() uint16 { return mnLensData }
func (d300s) NewState() (CameraState, error) {
	return &d300sState{}, nil
}

type d300sState struct {
	lens []byte
	exif *Directory

	afAperture  float64
	focalLength float64
	minFocal    float64
	maxFocal    float64
	lensID      byte
}

func (s *d300sState) ReadModelData(md ModelData) error {
	if len(md.Bytes) < 4 || string(md.Bytes[:4]) != d300sLensVersion {
		return fmt.Errorf("D300S lens data version: %w", errMakerNoteSize)
	}
	if len(md.Bytes)-4 != d300sLensPayload {
		return fmt.Errorf("D300S lens data is %d bytes, want %d: %w", len(md.Bytes)-4, d300sLensPayload, errMakerNoteSize)
	}
	s.lens = md.Bytes
	s.exif = md.Exif

	b := md.Bytes
	if b[d300sAFAperture] != 0 {
		s.afAperture = math.Pow(2, float64(b[d300sAFAperture])/24)
	}
	s.focalLength = 5 * math.Pow(2, float64(b[d300sFocalLength])/24)
	s.minFocal = 5 * math.Pow(2, float64(b[d300sMinFocal])/24)
	s.maxFocal = 5 * math.Pow(2, float64(b[d300sMaxFocal])/24)
	s.lensID = b[d300sLensID]
	return nil
}

func (s *d300sState) ImageAttribs() (uint32, float32, error) {
	if s.lens == nil {
		return 0, 0, fmt.Errorf("D300S: no lens data: %w", ErrNotFound)
	}
	aperture := s.afAperture
	if aperture == 0 && s.exif != nil {
		if f, err := s.exif.Float(tagFNumber, 0); err == nil {
			aperture = f
		}
	}

	var denom uint32
	if s.exif != nil {
		num, den, err := s.exif.Rational(tagExposureTime, 0)
		if err == nil && num > 0 {
			denom = uint32(math.Round(float64(den) / float64(num)))
			if denom == 0 {
				denom = 1
			}
		}
	}
	return denom, float32(aperture), nil
}

func (s *d300sState) Report() []Field {
	if s.lens == nil {
		return nil
	}
	return []Field{
		{"Lens ID", fmt.Sprintf("%d", s.lensID)},
		{"Focal length", fmt.Sprintf("%.1f mm", s.focalLength)},
		{"Zoom range", fmt.Sprintf("%.1f-%.1f mm", s.minFocal, s.maxFocal)},
		{"AF aperture", fmt.Sprintf("f/%.1f", s.afAperture)},
	}
}

func (s *d300sState) Close() error {
	s.lens = nil
	s.exif = nil
	return nil
}
