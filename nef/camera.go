package nef

import (
	"fmt"
)

// ModelData is what a camera plugin parses: the MakerNote and EXIF
// directories plus the payload of the camera's model data tag. Bytes keeps
// its 4-byte version prefix in the clear and holds the decrypted remainder;
// it is nil when the tag is absent or cannot be decrypted.
type ModelData struct {
	MakerNote *Directory
	Exif      *Directory
	Bytes     []byte
}

// CameraState is a plugin's parsed view of one file.
type CameraState interface {
	// ReadModelData parses the camera-specific MakerNote layout.
	ReadModelData(md ModelData) error
	// ImageAttribs returns the shutter speed as 1/shutterDenom seconds and
	// the aperture in f-stops.
	ImageAttribs() (shutterDenom uint32, aperture float32, err error)
	Close() error
}

// Camera interprets the MakerNote of one camera model.
type Camera interface {
	// Model is the root IFD Model string this plugin handles.
	Model() string
	// ModelDataTag is the MakerNote tag holding the encrypted model data.
	ModelDataTag() uint16
	NewState() (CameraState, error)
}

// SerialKeyer is implemented by cameras whose MakerNote serial number does
// not map to the obfuscation key the usual way.
type SerialKeyer interface {
	SerialKey(serial string) uint32
}

// Reporter is implemented by camera states that expose extra decoded
// fields for display.
type Reporter interface {
	Report() []Field
}

// Field is one named, formatted value.
type Field struct {
	Name  string
	Value string
}

var cameras registry[Camera]

func init() {
	RegisterCamera(d300s{})
}

// RegisterCamera appends c to the camera registry. The first camera
// registered for a model wins.
func RegisterCamera(c Camera) error {
	if c == nil {
		return fmt.Errorf("register camera: %w", ErrBadArgument)
	}
	cameras.add(c)
	return nil
}

// Cameras returns the registered camera plugins.
func Cameras() []Camera {
	return cameras.list()
}

// selectCamera returns the plugin for model.
func selectCamera(model string) (Camera, error) {
	for _, c := range cameras.list() {
		if c.Model() == model {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no camera plugin for %q: %w", model, ErrNotFound)
}
