// Package interfaces defines core interfaces and types for the storage
// adapter, separating interface definitions from implementations.
//
// # Storage Interfaces
//
// StorageBackend: Key-addressed object storage (memory, file, S3, MinIO,
// IPFS, Vault). Put reports a StoredFileReference carrying the size and a
// checksum computed by the backend, so uploads can be verified without
// reading the object back.
//
// StorageBackendFactory: Creates storage backends from location URIs.
//
// # Adapter Collaborators
//
// Verifier: Integrity check invoked on freshly written content.
//
// IDPathGenerator: Deterministic mapping of (resource id, filename, prefix,
// version) onto a BackendKey, and the inverse ownership predicate.
//
// VersionIndex: Ordered version sets keyed by the stable key of the
// original upload, with unique monotonic index reservation.
//
// # Errors
//
// All errors are sentinels meant to be matched with errors.Is:
// ErrContentNotFound, ErrBackendUnavailable, ErrInvalidLocationURI,
// ErrIntegrityCheckFailed and ErrInvalidFileID.
package interfaces
