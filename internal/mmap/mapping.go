package mmap

import (
	"io"
	"os"
	"sync/atomic"
)

// Mapping is a read-only view of a whole file.
type Mapping struct {
	data   []byte
	closed atomic.Bool
	unmap  func([]byte) error
}

// Open maps the file at path read-only. Empty files yield a Mapping with
// no backing memory.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := fi.Size()
	switch {
	case size < 0 || int64(int(size)) != size:
		return nil, ErrInvalidSize
	case size == 0:
		return &Mapping{}, nil
	}

	data, unmap, err := osMap(f, int(size))
	if err != nil {
		return nil, err
	}
	return &Mapping{data: data, unmap: unmap}, nil
}

// Close unmaps the file. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) || m.data == nil {
		return nil
	}
	return m.unmap(m.data)
}

// Bytes returns the mapped memory, or nil once closed. The slice must not
// be used after Close.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the file size in bytes.
func (m *Mapping) Size() int { return len(m.data) }

// Advise hints the kernel about the access pattern for the whole file.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.data == nil {
		return nil
	}
	return osAdvise(m.data, pattern)
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Region is a sub-range of a Mapping. It does not own memory.
type Region struct {
	parent *Mapping
	off    int
	size   int
}

// Region returns the view [off, off+size).
func (m *Mapping) Region(off, size int) (*Region, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if off < 0 || size < 0 || off+size > len(m.data) {
		return nil, ErrOutOfBounds
	}
	return &Region{parent: m, off: off, size: size}, nil
}

// Bytes returns the region's memory, or nil once the parent is closed.
func (r *Region) Bytes() []byte {
	if r.parent.closed.Load() {
		return nil
	}
	return r.parent.data[r.off : r.off+r.size]
}

// Advise hints the kernel about the access pattern for this region only.
func (r *Region) Advise(pattern AccessPattern) error {
	if r.parent.closed.Load() {
		return ErrClosed
	}
	if r.size == 0 {
		return nil
	}
	return osAdvise(r.parent.data[r.off:r.off+r.size], pattern)
}
