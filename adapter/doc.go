// Package adapter stores binary content for persisted resources through a
// pluggable storage backend.
//
// An Adapter composes a StorageBackend, a Verifier, an IDPathGenerator and a
// VersionIndex. Uploads write once, verify the written content and return a
// lazy File handle; content is only fetched when File.Read or File.Stream is
// called, and then at most once per handle.
//
// # Public identifiers
//
// Files are addressed by an opaque id of the form <scheme>://<key>, where key
// is the backend key of the original upload. Adapters without a prefix use
// the "blob" scheme and keys of the form <id>/<filename>; adapters with prefix
// p use "p-blob" and keys of the form p/<id>/<filename>. Later versions live
// at keys with an @v<n> segment before the filename but share the id of the
// original upload. A leading "@" in any other segment is escaped, so keys of
// differently configured adapters never collide on a shared backend.
//
// # Versions
//
// Version indexes are reserved from the VersionIndex before the write, so
// concurrent UploadVersion calls never share one. When the index has no
// record of an id whose original object exists in the backend, the adapter
// reseeds the index with that single version. Uploading to a (resource,
// filename) pair that already has recorded versions appends a new version.
package adapter
