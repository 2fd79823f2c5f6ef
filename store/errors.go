package store

import (
	"errors"
	"fmt"

	"github.com/hupe1980/segstore/codec"
)

var (
	// ErrNotFound is returned for row indices outside [0, Count()).
	ErrNotFound = errors.New("segment not found")

	// ErrCorruptPayload is returned when a stored payload does not decode to
	// the store's C × L shape.
	ErrCorruptPayload = codec.ErrCorruptPayload

	// ErrShapeMismatch is returned when a row or store disagrees with the
	// configured channel count or window length.
	ErrShapeMismatch = errors.New("segment shape mismatch")

	// ErrClosed is returned when using a closed Reader or finished Writer.
	ErrClosed = errors.New("store is closed")
)

// PayloadError describes a stored payload with an unexpected size.
//
// It satisfies errors.Is(err, ErrCorruptPayload).
type PayloadError struct {
	ID       int64
	Size     int
	Expected int
	Channels int
}

func (e *PayloadError) Error() string {
	if e.Expected > 0 {
		return fmt.Sprintf("corrupt segment payload: row %d has %d bytes, expected %d", e.ID, e.Size, e.Expected)
	}
	return fmt.Sprintf("corrupt segment payload: row %d has %d bytes, not a multiple of %d", e.ID, e.Size, 4*e.Channels)
}

func (e *PayloadError) Unwrap() error { return ErrCorruptPayload }
