package model

import (
	"fmt"
)

// BytesPerSample is the width of one stored float32 value.
const BytesPerSample = 4

// Shape describes a C × L segment.
type Shape struct {
	Channels int `json:"channels" yaml:"channels"`
	Length   int `json:"length" yaml:"length"`
}

// Samples returns the number of float values in one segment (C × L).
func (s Shape) Samples() int {
	return s.Channels * s.Length
}

// PayloadSize returns the byte length of one serialized segment.
func (s Shape) PayloadSize() int {
	return s.Samples() * BytesPerSample
}

// Valid reports whether both dimensions are positive.
func (s Shape) Valid() bool {
	return s.Channels > 0 && s.Length > 0
}

// String returns a string representation of the Shape.
func (s Shape) String() string {
	return fmt.Sprintf("%dx%d", s.Channels, s.Length)
}

// Recording is a preprocessed multichannel time series.
// Data holds Channels × Samples values, channel-major.
type Recording struct {
	Channels int
	Samples  int
	Data     []float32
}

// At returns the samples of channel c. The slice aliases Data.
func (r Recording) At(c int) []float32 {
	return r.Data[c*r.Samples : (c+1)*r.Samples]
}

// Validate checks that Data matches the declared dimensions.
func (r Recording) Validate() error {
	if r.Channels <= 0 {
		return fmt.Errorf("recording has %d channels", r.Channels)
	}
	if r.Samples < 0 || len(r.Data) != r.Channels*r.Samples {
		return fmt.Errorf("recording data has %d values, expected %d×%d", len(r.Data), r.Channels, r.Samples)
	}
	return nil
}

// Window is a fixed-length slice of a recording.
type Window struct {
	Shape
	// Offset is the start sample of the window in its source recording.
	Offset int
	Data   []float32
}

// At returns the samples of channel c. The slice aliases Data.
func (w Window) At(c int) []float32 {
	return w.Data[c*w.Length : (c+1)*w.Length]
}

// Row is one persisted segment.
type Row struct {
	ID            int64
	DatasetID     string
	SubjectID     string
	SegmentNumber int
	Window        Window
}

// Sample is a decoded row returned by a reader.
// Data is an independent copy and may be modified freely.
type Sample struct {
	Index     int
	DatasetID string
	SubjectID string
	Shape     Shape
	Data      []float32
}

// Batch is a group of samples stacked into one B × C × L array.
type Batch struct {
	// Indices holds the 0-based row index of every sample, in batch order.
	Indices    []int
	DatasetIDs []string
	SubjectIDs []string
	Shape      Shape
	Segments   []float32
}

// Len returns the number of samples in the batch.
func (b Batch) Len() int {
	return len(b.Indices)
}

// Segment returns the i-th C × L segment. The slice aliases Segments.
func (b Batch) Segment(i int) []float32 {
	n := b.Shape.Samples()
	return b.Segments[i*n : (i+1)*n]
}
