// Package hash computes the CRC32-Castagnoli checksums that guard published
// store generations.
//
// Manifests record the CRC32C of the raw store file, computed while the file
// streams to the blob store and again while it streams back. S3 uploads carry
// the same checksum in EncodeCRC32C form so the service can reject damaged
// parts.
package hash
