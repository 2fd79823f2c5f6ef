// Package s3 implements blobstore.BlobStore on Amazon S3.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	client := awss3.NewFromConfig(cfg)
//	store := s3.NewStore(client, "eeg-bucket", "segstore/")
//
//	m, err := publish.Publish(ctx, store, "segments.db", publish.Options{})
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads with CRC32C checksums
//   - Automatic pagination for listing
package s3
