// Package model defines the core types shared by segstore packages.
//
// # Shapes
//
//   - Shape: channel count C and window length L of a stored segment
//
// # Data Types
//
//   - Recording: one preprocessed C × T multichannel time series
//   - Window: a C × L slice of a recording produced by the segmenter
//   - Row: the persisted unit of the segment store
//   - Sample: one row decoded by a reader
//   - Batch: a B × C × L block of samples assembled by the loader
//
// All float data is row-major with channel as the outer (slower-varying)
// axis and time as the inner axis.
package model
