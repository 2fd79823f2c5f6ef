package preprocess

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/segstore/model"
)

var (
	// ErrChannelMismatch is returned when a recording does not have the
	// configured channel count.
	ErrChannelMismatch = errors.New("preprocess: channel count mismatch")
	// ErrUnsupported is returned for inputs a Preprocessor cannot decode.
	ErrUnsupported = errors.New("preprocess: unsupported input")
)

// Preprocessor turns a recording path into a preprocessed C × T matrix.
// Implementations must be safe for sequential reuse; Populate calls Process
// once per file.
type Preprocessor interface {
	Process(ctx context.Context, path string) (model.Recording, error)
}

// Func adapts a plain function to the Preprocessor interface.
type Func func(ctx context.Context, path string) (model.Recording, error)

// Process calls f(ctx, path).
func (f Func) Process(ctx context.Context, path string) (model.Recording, error) {
	return f(ctx, path)
}

// CheckChannels returns an error wrapping ErrChannelMismatch unless rec has
// exactly channels rows.
func CheckChannels(rec model.Recording, channels int) error {
	if rec.Channels != channels {
		return fmt.Errorf("%w: got %d, expected %d", ErrChannelMismatch, rec.Channels, channels)
	}
	return nil
}
