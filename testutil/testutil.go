package testutil

import (
	"math/rand"
	"path/filepath"
	"sync"

	"github.com/hupe1980/segstore/model"
)

// Scale separates channels in Ramp recordings: sample t of channel c holds c*Scale + t.
const Scale = 1_000_000

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uniform returns a channels × samples recording with values in [-1, 1).
func (r *RNG) Uniform(channels, samples int) model.Recording {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, channels*samples)
	for i := range data {
		data[i] = r.rand.Float32()*2 - 1
	}
	return model.Recording{Channels: channels, Samples: samples, Data: data}
}

// Gaussian returns a channels × samples recording drawn from a standard normal distribution.
func (r *RNG) Gaussian(channels, samples int) model.Recording {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, channels*samples)
	for i := range data {
		data[i] = float32(r.rand.NormFloat64())
	}
	return model.Recording{Channels: channels, Samples: samples, Data: data}
}

// Ramp returns a recording whose values encode their position:
// sample t of channel c holds c*Scale + t. Windows cut from a ramp can be
// traced back to their offset via Origin.
func Ramp(channels, samples int) model.Recording {
	data := make([]float32, channels*samples)
	for c := 0; c < channels; c++ {
		for t := 0; t < samples; t++ {
			data[c*samples+t] = float32(c*Scale + t)
		}
	}
	return model.Recording{Channels: channels, Samples: samples, Data: data}
}

// Origin returns the start offset of a window cut from a Ramp recording.
func Origin(data []float32) int {
	return int(data[0])
}

// IsRampWindow reports whether data is a contiguous channels × length window of a Ramp.
func IsRampWindow(data []float32, channels, length int) bool {
	if len(data) != channels*length {
		return false
	}
	start := data[0]
	for c := 0; c < channels; c++ {
		for t := 0; t < length; t++ {
			if data[c*length+t] != float32(c*Scale)+start+float32(t) {
				return false
			}
		}
	}
	return true
}

// RecordingPath builds a BIDS-like path below root for a dataset and subject.
func RecordingPath(root, dataset, subject, ext string) string {
	return filepath.Join(root, dataset, subject, "eeg", subject+"_task-rest_eeg"+ext)
}
