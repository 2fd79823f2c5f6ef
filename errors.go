package segstore

import (
	"errors"

	"github.com/hupe1980/segstore/ident"
	"github.com/hupe1980/segstore/preprocess"
	"github.com/hupe1980/segstore/segmenter"
	"github.com/hupe1980/segstore/store"
)

// Error classes callers branch on. Errors returned by this module wrap one
// of these where applicable; test with errors.Is.
var (
	// ErrNotFound is returned for row indices outside the store.
	ErrNotFound = store.ErrNotFound
	// ErrCorruptPayload is returned for rows whose payload is not C × L float32s.
	ErrCorruptPayload = store.ErrCorruptPayload
	// ErrShapeMismatch is returned when data does not have the configured shape.
	ErrShapeMismatch = store.ErrShapeMismatch
	// ErrNoSegments is returned for recordings shorter than one window.
	ErrNoSegments = segmenter.ErrNoSegments
	// ErrClosed is returned when using a closed reader, writer or loader.
	ErrClosed = store.ErrClosed
	// ErrNoMatch is returned for paths without dataset and subject ids.
	ErrNoMatch = ident.ErrNoMatch
	// ErrChannelMismatch is returned for recordings with the wrong channel count.
	ErrChannelMismatch = preprocess.ErrChannelMismatch
)

var (
	// ErrInvalidConfig is returned for unusable loader or populate settings.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrEpochActive is returned when starting an epoch while another is running.
	ErrEpochActive = errors.New("loader epoch already active")
	// ErrGenerationChanged is returned when worker readers observe a different
	// store generation than the one the loader was created on.
	ErrGenerationChanged = errors.New("store generation changed")
)
