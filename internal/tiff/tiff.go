// Package tiff reads classic TIFF containers: the header, Image File
// Directories and their resolved entries. Directories live in an arena owned
// by the Container and are referred to by handle.
package tiff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// ErrNotTIFF is returned when the data does not start with a classic TIFF header.
var ErrNotTIFF = errors.New("tiff: not a classic TIFF file")

// ErrBadHandle is returned for handles that were never issued or were freed.
var ErrBadHandle = errors.New("tiff: invalid IFD handle")

// IFDHandle refers to a directory in a Container's arena. The zero handle is
// never valid.
type IFDHandle uint32

var (
	openContainers atomic.Int64
	liveIFDs       atomic.Int64
)

// Stats reports the number of open containers and live directories across
// the process.
func Stats() (containers, ifds int64) {
	return openContainers.Load(), liveIFDs.Load()
}

// Container is an open TIFF byte stream.
type Container struct {
	data   []byte
	mapped bool
	bo     binary.ByteOrder
	first  uint32

	mu    sync.Mutex
	arena []*IFD // index = handle-1; nil slots are freed
	free  []IFDHandle
}

// Open memory-maps the file at path read-only and parses its header.
func Open(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	size := fi.Size()
	if size == 0 {
		return nil, fmt.Errorf("%s: empty file: %w", path, ErrNotTIFF)
	}

	data, mapped, err := mapFile(f, size)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	c, err := newContainer(data, mapped)
	if err != nil {
		if mapped {
			unmapFile(data)
		}
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return c, nil
}

// FromBytes parses a TIFF held in memory. The container aliases data.
func FromBytes(data []byte) (*Container, error) {
	return newContainer(data, false)
}

func newContainer(data []byte, mapped bool) (*Container, error) {
	if len(data) < 8 {
		return nil, ErrNotTIFF
	}
	var bo binary.ByteOrder
	switch string(data[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("invalid byte order %q: %w", data[0:2], ErrNotTIFF)
	}
	if magic := bo.Uint16(data[2:4]); magic != 42 {
		return nil, fmt.Errorf("unsupported TIFF version %d: %w", magic, ErrNotTIFF)
	}

	openContainers.Add(1)
	return &Container{
		data:   data,
		mapped: mapped,
		bo:     bo,
		first:  bo.Uint32(data[4:8]),
	}, nil
}

// Close frees every remaining directory and releases the file mapping.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		return nil
	}
	for i, d := range c.arena {
		if d != nil {
			c.arena[i] = nil
			liveIFDs.Add(-1)
		}
	}
	c.arena, c.free = nil, nil

	var err error
	if c.mapped {
		err = unmapFile(c.data)
	}
	c.data = nil
	openContainers.Add(-1)
	return err
}

// ByteOrder returns the container's byte order.
func (c *Container) ByteOrder() binary.ByteOrder {
	return c.bo
}

// Size returns the length of the underlying data.
func (c *Container) Size() int64 {
	return int64(len(c.data))
}

// BaseIFDOffset returns the offset of the first directory.
func (c *Container) BaseIFDOffset() uint32 {
	return c.first
}

// ReadAt implements io.ReaderAt over the container bytes.
func (c *Container) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("tiff: negative offset %d", off)
	}
	if off >= int64(len(c.data)) {
		return 0, io.EOF
	}
	n := copy(p, c.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Slice returns the n bytes at off without copying. The slice aliases the
// container and is valid until Close.
func (c *Container) Slice(off, n int64) ([]byte, error) {
	if off < 0 || n < 0 || off+n > int64(len(c.data)) {
		return nil, fmt.Errorf("tiff: range [%d:%d] outside data (%d bytes)", off, off+n, len(c.data))
	}
	return c.data[off : off+n : off+n], nil
}

// ReadIFD parses the directory at off in the container's byte order.
func (c *Container) ReadIFD(off uint32) (IFDHandle, error) {
	if c.data == nil {
		return 0, ErrBadHandle
	}
	d, err := parseIFD(c.data, c.bo, off)
	if err != nil {
		return 0, err
	}
	return c.put(d), nil
}

// MakeIFD parses a directory embedded in buf, such as a MakerNote. Value
// offsets inside it are relative to the start of buf.
func (c *Container) MakeIFD(buf []byte, off uint32, order binary.ByteOrder) (IFDHandle, error) {
	if order == nil {
		order = c.bo
	}
	d, err := parseIFD(buf, order, off)
	if err != nil {
		return 0, err
	}
	return c.put(d), nil
}

func (c *Container) put(d *IFD) IFDHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	liveIFDs.Add(1)
	if n := len(c.free); n > 0 {
		h := c.free[n-1]
		c.free = c.free[:n-1]
		c.arena[h-1] = d
		return h
	}
	c.arena = append(c.arena, d)
	return IFDHandle(len(c.arena))
}

// FreeIFD releases a directory. Freeing an unknown handle is an error.
func (c *Container) FreeIFD(h IFDHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h == 0 || int(h) > len(c.arena) || c.arena[h-1] == nil {
		return ErrBadHandle
	}
	c.arena[h-1] = nil
	c.free = append(c.free, h)
	liveIFDs.Add(-1)
	return nil
}

// IFD returns the directory behind a handle.
func (c *Container) IFD(h IFDHandle) (*IFD, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h == 0 || int(h) > len(c.arena) || c.arena[h-1] == nil {
		return nil, ErrBadHandle
	}
	return c.arena[h-1], nil
}

// Order returns the byte order of the directory behind h.
func (c *Container) Order(h IFDHandle) binary.ByteOrder {
	d, err := c.IFD(h)
	if err != nil {
		return c.bo
	}
	return d.order
}

// Tag looks up an entry by id.
func (c *Container) Tag(h IFDHandle, id uint16) (*Entry, error) {
	d, err := c.IFD(h)
	if err != nil {
		return nil, err
	}
	e, ok := d.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("tag %#04x: %w", id, ErrTagNotFound)
	}
	return e, nil
}

// TagData copies the resolved value bytes of e into dst and returns the
// number of bytes written.
func (c *Container) TagData(h IFDHandle, e *Entry, dst []byte) (int, error) {
	if _, err := c.IFD(h); err != nil {
		return 0, err
	}
	if TypeSize(e.Type) == 0 {
		return 0, fmt.Errorf("tag %#04x type %d: %w", e.ID, e.Type, ErrUnknownType)
	}
	if len(dst) < len(e.data) {
		return 0, fmt.Errorf("tag %#04x needs %d bytes, have %d: %w", e.ID, len(e.data), len(dst), ErrShortBuffer)
	}
	return copy(dst, e.data), nil
}
