package nef

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/pspoerri/nefko/internal/tiff"
)

const nikonMake = "NIKON CORPORATION"

// File is an open NEF. A File is not safe for concurrent use; open one
// File per goroutine to decode in parallel.
type File struct {
	c      *tiff.Container
	root   tiff.IFDHandle
	images []*Image

	exif      tiff.IFDHandle
	makerNote tiff.IFDHandle
	mnBuf     []byte

	model  string
	obf    Obfuscation
	camera Camera
	state  CameraState

	closed bool
}

// Open opens the NEF at path.
func Open(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("nef: open: empty path: %w", ErrBadArgument)
	}
	c, err := tiff.Open(path)
	if err != nil {
		if errors.Is(err, tiff.ErrNotTIFF) {
			return nil, wrap(ErrNotNEF, "nef: open", err)
		}
		return nil, wrap(ErrNotFound, "nef: open", err)
	}
	return open(c)
}

// OpenBytes opens a NEF held in memory. The File aliases data.
func OpenBytes(data []byte) (*File, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("nef: open: no data: %w", ErrBadArgument)
	}
	c, err := tiff.FromBytes(data)
	if err != nil {
		return nil, wrap(ErrNotNEF, "nef: open", err)
	}
	return open(c)
}

// openStep is one state of the open sequence.
type openStep struct {
	name string
	run  func(*File, *unwinder) error
}

var openSteps = []openStep{
	{"identifying", (*File).identify},
	{"discovering images", (*File).discoverImages},
	{"loading metadata", (*File).loadMetadata},
	{"deobfuscating", (*File).deobfuscate},
}

func open(c *tiff.Container) (*File, error) {
	f := &File{c: c}
	u := &unwinder{}
	u.push(c.Close)
	for _, step := range openSteps {
		debugf("open: %s", step.name)
		if err := step.run(f, u); err != nil {
			return nil, u.unwind(fmt.Errorf("nef: open: %s: %w", step.name, err))
		}
	}
	u.commit()
	debugf("open: %d images, model %q, obfuscation %s", len(f.images), f.model, f.obf)
	return f, nil
}

// identify reads the root IFD and checks the vendor.
func (f *File) identify(u *unwinder) error {
	root, err := f.c.ReadIFD(f.c.BaseIFDOffset())
	if err != nil {
		return wrap(ErrNotNEF, "root IFD", err)
	}
	f.root = root
	u.push(func() error { return f.c.FreeIFD(root) })

	mk, _, _, err := getTagAlloc(f.c, root, tagMake)
	if err != nil {
		return wrap(ErrNotNEF, "Make", err)
	}
	if i := bytes.IndexByte(mk, 0); i >= 0 {
		mk = mk[:i]
	}
	if string(mk) != nikonMake {
		return fmt.Errorf("vendor %q: %w", mk, ErrNotNEF)
	}
	return nil
}

// discoverImages builds the image list from the root IFD and its SubIFDs.
// A sub-image that cannot be read is dropped; the root image must load.
func (f *File) discoverImages(u *unwinder) error {
	sub, err := f.c.Tag(f.root, tagSubIFDs)
	if err != nil {
		return wrap(ErrNotNEF, "SubIFDs", err)
	}
	offsets, err := sub.Uints()
	if err != nil {
		return wrap(ErrNotNEF, "SubIFDs", err)
	}

	attrs, err := populateImage(f.c, f.root)
	if err != nil {
		return wrap(ErrNotNEF, "root image", err)
	}
	f.images = make([]*Image, 0, len(offsets)+1)
	f.images = append(f.images, &Image{file: f, ifd: f.root, attrs: attrs})

	for i, off := range offsets {
		h, err := f.c.ReadIFD(off)
		if err != nil {
			debugf("SubIFD %d at %d: %v", i, off, err)
			continue
		}
		attrs, err := populateImage(f.c, h)
		if err != nil {
			debugf("SubIFD %d: %v", i, err)
			if ferr := f.c.FreeIFD(h); ferr != nil {
				return translate("freeing SubIFD", ferr)
			}
			continue
		}
		u.push(func() error { return f.c.FreeIFD(h) })
		f.images = append(f.images, &Image{file: f, index: len(f.images), ifd: h, attrs: attrs})
	}
	return nil
}

// loadMetadata reads the EXIF IFD and the MakerNote inside it.
func (f *File) loadMetadata(u *unwinder) error {
	ptr, err := f.c.Tag(f.root, tagExifIFD)
	if err != nil {
		return wrap(ErrNotNEF, "EXIF IFD", err)
	}
	exif, err := f.c.ReadIFD(ptr.RawField())
	if err != nil {
		return wrap(ErrNotNEF, "EXIF IFD", err)
	}
	f.exif = exif
	u.push(func() error { return f.c.FreeIFD(exif) })

	mn, _, _, err := getTagAlloc(f.c, exif, tagMakerNote)
	if err != nil {
		return wrap(ErrNotNEF, "MakerNote", err)
	}
	h, buf, err := parseMakerNote(f.c, mn)
	if err != nil {
		return err
	}
	f.makerNote, f.mnBuf = h, buf
	u.push(func() error { return f.c.FreeIFD(h) })
	return nil
}

// deobfuscate selects the camera plugin, derives the decryption parameters
// and lets the plugin parse its model data. Missing parameters or a plugin
// failure leave the file usable without them.
func (f *File) deobfuscate(u *unwinder) error {
	if err := getTag(f.c, f.root, tagModel, &f.model); err != nil {
		debugf("no Model tag: %v", err)
	}
	cam, err := selectCamera(f.model)
	if err != nil {
		debugf("%v", err)
	}
	f.camera = cam

	mn := f.MakerNote()
	// The key folds the serial's stored bytes, not its decoded text.
	rawSerial, serr := mn.Bytes(mnSerial)
	count, cerr := mn.Uint(mnShutterCount)
	if serr == nil && cerr == nil {
		if i := bytes.IndexByte(rawSerial, 0); i >= 0 {
			rawSerial = rawSerial[:i]
		}
		serial := string(rawSerial)
		key := serialKey(serial)
		if sk, ok := cam.(SerialKeyer); ok {
			key = sk.SerialKey(serial)
		}
		f.obf = newObfuscation(byte(key), count)
	} else {
		debugf("no obfuscation parameters (serial: %v, shutter count: %v)", serr, cerr)
	}

	if cam == nil {
		return nil
	}
	state, err := cam.NewState()
	if err != nil {
		debugf("camera %s: %v", cam.Model(), err)
		return nil
	}
	md := ModelData{
		MakerNote: mn,
		Exif:      f.Exif(),
		Bytes:     f.modelData(cam.ModelDataTag()),
	}
	if err := state.ReadModelData(md); err != nil {
		debugf("camera %s: dropping model data: %v (status %#x)", cam.Model(), err, StatusOf(err))
		if cerr := state.Close(); cerr != nil {
			return translate("camera state", cerr)
		}
		return nil
	}
	f.state = state
	u.push(func() error {
		f.state = nil
		return state.Close()
	})
	return nil
}

// Close releases every image, the EXIF and MakerNote directories, the
// camera state and the container. Closing twice is an error.
func (f *File) Close() error {
	if f == nil || f.closed {
		return fmt.Errorf("nef: close: %w", ErrBadArgument)
	}
	f.closed = true

	var result *multierror.Error
	for _, img := range f.images {
		if img.dec != nil {
			if err := img.dec.Close(); err != nil {
				result = multierror.Append(result, err)
			}
			img.dec = nil
		}
		if err := f.c.FreeIFD(img.ifd); err != nil {
			result = multierror.Append(result, err)
		}
	}
	f.images = nil
	for _, h := range []tiff.IFDHandle{f.exif, f.makerNote} {
		if err := f.c.FreeIFD(h); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if f.state != nil {
		if err := f.state.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		f.state = nil
	}
	if err := f.c.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return wrap(ErrFailure, "nef: close", err)
	}
	return nil
}

func (f *File) check() error {
	if f == nil || f.closed {
		return fmt.Errorf("nef: file is closed: %w", ErrBadArgument)
	}
	return nil
}

// ImageCount returns the number of usable images.
func (f *File) ImageCount() int {
	return len(f.images)
}

// Image returns image i. Index 0 is the root IFD's image.
func (f *File) Image(i int) (*Image, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(f.images) {
		debugf("invalid image %d of %d", i, len(f.images))
		return nil, fmt.Errorf("nef: image %d of %d: %w", i, len(f.images), ErrRange)
	}
	return f.images[i], nil
}

// Images returns all usable images in file order.
func (f *File) Images() []*Image {
	return append([]*Image(nil), f.images...)
}

// Attributes returns the attributes of img.
func (f *File) Attributes(img *Image) (Attributes, error) {
	if err := f.check(); err != nil {
		return Attributes{}, err
	}
	if img == nil || img.file != f {
		return Attributes{}, fmt.Errorf("nef: attributes: %w", ErrBadArgument)
	}
	return img.attrs, nil
}

// ExifTag returns the type and count of an EXIF tag and, when data is
// non-nil, copies its value into data.
func (f *File) ExifTag(id uint16, data []byte) (tiff.DataType, uint32, error) {
	if err := f.check(); err != nil {
		return 0, 0, err
	}
	typ, count, err := f.Exif().Info(id)
	if err != nil {
		return 0, 0, fmt.Errorf("nef: exif: %w", err)
	}
	if data == nil {
		return typ, count, nil
	}
	if err := getTag(f.c, f.exif, id, data); err != nil {
		return 0, 0, fmt.Errorf("nef: exif: %w", err)
	}
	return typ, count, nil
}

// Model returns the camera model from the root IFD.
func (f *File) Model() string {
	return f.model
}

// Make returns the vendor string from the root IFD.
func (f *File) Make() string {
	return nikonMake
}

// WhiteBalance returns the white balance coefficients recorded in the
// MakerNote.
func (f *File) WhiteBalance() ([]float32, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	mn := f.MakerNote()
	_, count, err := mn.Info(mnWhiteBalance)
	if err != nil {
		return nil, fmt.Errorf("nef: white balance: %w", err)
	}
	out := make([]float32, count)
	for i := range out {
		v, err := mn.Float(mnWhiteBalance, i)
		if err != nil {
			return nil, fmt.Errorf("nef: white balance: %w", err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

// ImageAttribs returns the exposure reported by the camera plugin.
func (f *File) ImageAttribs() (shutterDenom uint32, aperture float32, err error) {
	if err := f.check(); err != nil {
		return 0, 0, err
	}
	if f.state == nil {
		return 0, 0, fmt.Errorf("nef: no camera data for %q: %w", f.model, ErrNotFound)
	}
	return f.state.ImageAttribs()
}

// CameraReport returns extra fields decoded by the camera plugin, if any.
func (f *File) CameraReport() []Field {
	if r, ok := f.state.(Reporter); ok {
		return r.Report()
	}
	return nil
}

// Exif returns the EXIF directory.
func (f *File) Exif() *Directory {
	return &Directory{c: f.c, h: f.exif}
}

// MakerNote returns the MakerNote directory.
func (f *File) MakerNote() *Directory {
	if f.makerNote == 0 {
		return nil
	}
	return &Directory{c: f.c, h: f.makerNote}
}

// Root returns the root IFD directory.
func (f *File) Root() *Directory {
	return &Directory{c: f.c, h: f.root}
}

// Obfuscation returns the MakerNote decryption parameters.
func (f *File) Obfuscation() Obfuscation {
	return f.obf
}
