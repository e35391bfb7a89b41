package interfaces

import (
	"context"
	"io"
)

// ResourceIdentifier is the stable identifier of a persisted resource.
// It is owned by the persistence framework; the adapter never mints one.
type ResourceIdentifier string

// String returns the identifier as a plain string.
func (id ResourceIdentifier) String() string {
	return string(id)
}

// Resource is anything the persistence framework can hand to the adapter
// as the owner of an uploaded file.
type Resource interface {
	ResourceID() ResourceIdentifier
}

// Verifier confirms the integrity of content that was just written.
//
// The reader is positioned at the start of the uploaded content. Returning
// false is a recoverable rejection: the adapter removes the written object
// and reports ErrIntegrityCheckFailed.
type Verifier interface {
	Verify(r io.Reader, ref StoredFileReference) bool
}

// IDPathGenerator maps resource identity onto backend keys.
type IDPathGenerator interface {
	// Generate returns the key for one version of a file. Identical inputs
	// always produce identical keys.
	Generate(resource ResourceIdentifier, filename string, prefix string, version uint64) BackendKey

	// Matches reports whether key belongs to the namespace of this generator
	// configured with prefix.
	Matches(key BackendKey, prefix string) bool

	// Parse is the inverse of Generate. ok is false for keys that Matches
	// would reject.
	Parse(key BackendKey, prefix string) (resource ResourceIdentifier, filename string, version uint64, ok bool)
}

// VersionIndex tracks the ordered version set of each stored file,
// keyed by the backend key of its original (version 0) upload.
//
// Implementations must be safe for concurrent use and must never hand out
// the same index twice for one stable key.
type VersionIndex interface {
	// Reserve returns the next unused version index for stable.
	// Indexes are strictly increasing and start at 1.
	Reserve(ctx context.Context, stable BackendKey) (uint64, error)

	// Commit records a completed write. Committing an index that is
	// already recorded replaces that entry only.
	Commit(ctx context.Context, stable BackendKey, ref StoredFileReference) error

	// List returns the committed versions ordered by index, oldest first.
	// Returns ErrContentNotFound if nothing is recorded for stable.
	List(ctx context.Context, stable BackendKey) ([]StoredFileReference, error)

	// Remove forgets every version of stable.
	Remove(ctx context.Context, stable BackendKey) error

	// Close releases resources held by the index.
	Close() error
}
