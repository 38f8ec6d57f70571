package nef

import (
	"errors"
	"fmt"
	"os"

	"github.com/pspoerri/nefko/internal/tiff"
)

// Error taxonomy. Every error returned by this package wraps exactly one of
// these sentinels; use errors.Is to classify.
var (
	ErrNoMemory    = errors.New("nef: out of memory")
	ErrNotNEF      = errors.New("nef: not a NEF file")
	ErrNotFound    = errors.New("nef: not found")
	ErrBadArgument = errors.New("nef: bad argument")
	ErrRange       = errors.New("nef: value out of range")
	ErrFailure     = errors.New("nef: failure")
)

// errMakerNoteSize reports model data whose length does not match the
// camera's layout. It never leaves Open.
var errMakerNoteSize = errors.New("nef: MakerNote data has the wrong size for this model")

// Status codes, numerically compatible with libnefko.
const (
	StatusOK            = 0x0
	StatusNoMemory      = 0x1
	StatusNotNEF        = 0x2
	StatusNotFound      = 0x3
	StatusBadArgument   = 0x4
	StatusRangeError    = 0x5
	StatusFailure       = 0x6
	statusMakerNoteSize = 0x80000001
)

// StatusOf maps an error to its numeric status code. Errors outside the
// taxonomy map to StatusFailure.
func StatusOf(err error) uint32 {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, errMakerNoteSize):
		return statusMakerNoteSize
	case errors.Is(err, ErrNoMemory):
		return StatusNoMemory
	case errors.Is(err, ErrNotNEF):
		return StatusNotNEF
	case errors.Is(err, ErrNotFound):
		return StatusNotFound
	case errors.Is(err, ErrBadArgument):
		return StatusBadArgument
	case errors.Is(err, ErrRange):
		return StatusRangeError
	default:
		return StatusFailure
	}
}

// wrap attaches a sentinel to a collaborator error, keeping both in the
// chain.
func wrap(sentinel error, context string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", context, sentinel)
	}
	return fmt.Errorf("%s: %w: %w", context, sentinel, err)
}

// translate classifies an error from the TIFF or decompression layers.
func translate(context string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNoMemory), errors.Is(err, ErrNotNEF), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrBadArgument), errors.Is(err, ErrRange), errors.Is(err, ErrFailure):
		return fmt.Errorf("%s: %w", context, err)
	case errors.Is(err, os.ErrNotExist):
		return wrap(ErrNotFound, context, err)
	case errors.Is(err, tiff.ErrNotTIFF):
		return wrap(ErrNotNEF, context, err)
	case errors.Is(err, tiff.ErrTagNotFound):
		return wrap(ErrNotFound, context, err)
	case errors.Is(err, tiff.ErrShortBuffer), errors.Is(err, tiff.ErrUnknownType):
		return wrap(ErrRange, context, err)
	case errors.Is(err, tiff.ErrBadHandle):
		return wrap(ErrBadArgument, context, err)
	default:
		return wrap(ErrFailure, context, err)
	}
}
