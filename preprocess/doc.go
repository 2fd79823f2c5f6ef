// Package preprocess is the boundary to the external signal-processing step.
//
// Channel mapping, re-referencing, filtering and resampling happen outside
// this module. Whatever performs them is plugged in as a Preprocessor that
// turns a recording path into a C × T float32 matrix. NPY reads matrices that
// an upstream pipeline already wrote to disk as NumPy .npy files.
package preprocess
