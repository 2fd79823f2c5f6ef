// Package blobstore abstracts the object storage that sealed store
// generations are published to and fetched from.
//
// BlobStore implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local directory, atomic temp+rename writes, mmap reads
//   - MemoryStore: in-process map, for tests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// Writes through Create become visible only after Close succeeds. Readers
// never see a partially written blob under its final name.
package blobstore
