// Package segmenter slices preprocessed recordings into fixed-length,
// overlapping windows and subsamples a bounded number of them per recording.
package segmenter

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/segstore/model"
)

var (
	// ErrNoSegments is returned when a recording is shorter than one window.
	ErrNoSegments = errors.New("no usable segments")

	// ErrInvalidConfig is returned by New for out-of-range settings.
	ErrInvalidConfig = errors.New("invalid segmenter config")
)

// Selection decides which windows are retained when a recording yields more
// than MaxWindows.
type Selection uint8

const (
	// SelectRandom keeps the first MaxWindows of a uniform random permutation.
	SelectRandom Selection = iota
	// SelectEven keeps MaxWindows evenly spaced windows in recording order.
	SelectEven
)

// String returns the stable name of the selection.
func (s Selection) String() string {
	switch s {
	case SelectRandom:
		return "random"
	case SelectEven:
		return "even"
	default:
		return fmt.Sprintf("selection(%d)", uint8(s))
	}
}

// ParseSelection returns the selection for a stable name. Empty means random.
func ParseSelection(name string) (Selection, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "random":
		return SelectRandom, nil
	case "even":
		return SelectEven, nil
	default:
		return SelectRandom, fmt.Errorf("unknown selection %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Selection) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Selection) UnmarshalText(text []byte) error {
	parsed, err := ParseSelection(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Config holds the windowing policy.
type Config struct {
	WindowSeconds float64
	TargetRate    float64
	// OverlapFactor is the fraction of a window shared by consecutive windows, in [0, 1).
	OverlapFactor float64
	// MaxWindows caps the windows retained per recording.
	MaxWindows int
	Selection  Selection
	// Seed fixes the permutation used by SelectRandom. Zero seeds from the clock.
	Seed uint64
}

// WindowLength returns L = floor(WindowSeconds × TargetRate).
func (c Config) WindowLength() int {
	return int(math.Floor(c.WindowSeconds * c.TargetRate))
}

// Stride returns the distance between consecutive window starts:
// max(1, round(L × (1 − OverlapFactor))).
func (c Config) Stride() int {
	s := int(math.Round(float64(c.WindowLength()) * (1 - c.OverlapFactor)))
	return max(1, s)
}

// Validate reports the first out-of-range setting.
func (c Config) Validate() error {
	if c.WindowLength() < 1 {
		return fmt.Errorf("%w: window of %gs at %gHz is shorter than one sample", ErrInvalidConfig, c.WindowSeconds, c.TargetRate)
	}
	if c.OverlapFactor < 0 || c.OverlapFactor >= 1 || math.IsNaN(c.OverlapFactor) {
		return fmt.Errorf("%w: overlap factor %g outside [0, 1)", ErrInvalidConfig, c.OverlapFactor)
	}
	if c.MaxWindows < 1 {
		return fmt.Errorf("%w: max windows %d must be positive", ErrInvalidConfig, c.MaxWindows)
	}
	if c.Selection > SelectEven {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, c.Selection)
	}
	return nil
}

// Segmenter splits recordings into windows. It is safe for concurrent use.
type Segmenter struct {
	cfg    Config
	length int
	stride int

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Segmenter for cfg.
func New(cfg Config) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &Segmenter{
		cfg:    cfg,
		length: cfg.WindowLength(),
		stride: cfg.Stride(),
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// WindowLength returns L in samples.
func (s *Segmenter) WindowLength() int { return s.length }

// Stride returns the window stride in samples.
func (s *Segmenter) Stride() int { return s.stride }

// Count returns the number of raw windows a recording of samples yields.
func (s *Segmenter) Count(samples int) int {
	if samples < s.length {
		return 0
	}
	return (samples-s.length)/s.stride + 1
}

// Offsets returns the start sample of every raw window.
func (s *Segmenter) Offsets(samples int) []int {
	n := s.Count(samples)
	offsets := make([]int, n)
	for i := range offsets {
		offsets[i] = i * s.stride
	}
	return offsets
}

// Split slices rec into windows and retains at most MaxWindows of them.
// With SelectRandom the windows are returned in permuted order; with
// SelectEven in recording order. Window data is copied out of rec.
func (s *Segmenter) Split(rec model.Recording) ([]model.Window, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	offsets := s.Offsets(rec.Samples)
	if len(offsets) == 0 {
		return nil, fmt.Errorf("%w: %d samples < window length %d", ErrNoSegments, rec.Samples, s.length)
	}

	picked := s.pick(len(offsets))
	windows := make([]model.Window, len(picked))
	for i, idx := range picked {
		windows[i] = s.cut(rec, offsets[idx])
	}
	return windows, nil
}

func (s *Segmenter) pick(n int) []int {
	k := min(n, s.cfg.MaxWindows)

	if s.cfg.Selection == SelectEven {
		idx := make([]int, k)
		for i := range idx {
			idx[i] = i * n / k
		}
		return idx
	}

	s.mu.Lock()
	perm := s.rng.Perm(n)
	s.mu.Unlock()
	return perm[:k]
}

func (s *Segmenter) cut(rec model.Recording, offset int) model.Window {
	shape := model.Shape{Channels: rec.Channels, Length: s.length}
	data := make([]float32, shape.Samples())
	for c := 0; c < rec.Channels; c++ {
		copy(data[c*s.length:(c+1)*s.length], rec.At(c)[offset:offset+s.length])
	}
	return model.Window{Shape: shape, Offset: offset, Data: data}
}
