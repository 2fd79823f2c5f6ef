// Package fs provides the filesystem primitives segstore relies on for
// atomic generation swaps.
//
//   - [Lock]: exclusive advisory lock held by a store writer
//   - [TempPath]: sibling temp name for a file that will be published
//   - [Publish]: fsync + rename + directory fsync
//
// # Design Notes
//
// This package intentionally does NOT include context.Context parameters.
// Filesystem operations are typically fast and non-interruptible at the
// syscall level. For slow backends, use [blobstore.Blob] which has context
// support.
package fs
