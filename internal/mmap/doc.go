// Package mmap provides read-only memory-mapped file access.
//
// Preprocessed recordings can be large; mapping them lets the segmenter cut
// windows straight out of the page cache instead of reading the whole file
// into the heap first.
//
// # Usage
//
//	m, err := mmap.Open("recording.npy")
//	if err != nil { ... }
//	defer m.Close()
//
//	// View of the array payload after the header
//	region, _ := m.Region(headerLen, m.Size()-headerLen)
//	region.Advise(mmap.AccessSequential)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with madvise(2) for access hints
//   - Windows: CreateFileMapping/MapViewOfFile (advice is a no-op)
//
// # Thread Safety
//
// Mapping and Region are safe for concurrent read access. Close is
// idempotent; callers must not touch Bytes() after Close returns.
package mmap
