// Package testutil provides testing utilities for segstore.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating synthetic recordings with either
// traceable (ramp) or random content, and for laying out recording trees
// the way the identifier extractor expects.
//
// # Synthetic Recordings
//
//	rec := testutil.Ramp(4, 1024)        // value = channel*Scale + sample
//	rng := testutil.NewRNG(seed)
//	rec := rng.Gaussian(4, 1024)         // standard normal
//
// # Recording Paths
//
//	path := testutil.RecordingPath(root, "ds002718", "sub-007", ".npy")
package testutil
