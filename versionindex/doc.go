// Package versionindex records the version sets of stored files.
//
// Each set is keyed by the backend key of the original upload and holds one
// StoredFileReference per version, ordered by version index. Index
// reservation is unique and monotonic per key under concurrent writers:
//
//   - MemoryIndex guards a counter with a mutex
//   - RedisIndex uses INCR
//   - BadgerIndex reads and writes the counter in one transaction and
//     retries on badger.ErrConflict
//   - SQLiteIndex bumps the counter with a single upsert ... RETURNING
//
// Open selects an implementation from a URI:
//
//	memory://
//	redis://[:password@]host:6379/0?namespace=files
//	badger:///var/lib/storage-adapter/index   (badger://memory for an in-memory store)
//	sqlite:///var/lib/storage-adapter/index.db
package versionindex
