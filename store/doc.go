// Package store implements the segment store: one write-once/read-many SQLite
// table holding fixed-size float32 segments keyed by a 1-based surrogate id.
//
// # Generations
//
// A Writer builds a complete generation in a sibling temp file while holding
// an exclusive lock, then atomically renames it over the store path on Commit.
// Readers that opened the previous generation keep reading it; readers opened
// afterwards see the new one. There is never a moment where the table is
// dropped but not yet repopulated.
//
// # Schema
//
//	id             INTEGER PRIMARY KEY AUTOINCREMENT
//	dataset_id     TEXT    NOT NULL
//	subject_id     TEXT    NOT NULL
//	segment_number INTEGER NOT NULL
//	channels       INTEGER NOT NULL
//	length         INTEGER NOT NULL
//	segment        BLOB    NOT NULL  -- channels × length little-endian float32
//
// # Readers
//
// A Reader owns exactly one connection and is meant to be used by one
// goroutine at a time. Concurrent consumers open one Reader each (see Opener).
package store
