package adapter

import (
	"io"

	"github.com/ruteri/storage-adapter/checksum"
	"github.com/ruteri/storage-adapter/interfaces"
)

// ChecksumVerifier recomputes the digest of the uploaded content with the
// algorithm the backend reported and compares the two.
// A reference without a digest is rejected.
type ChecksumVerifier struct{}

// Verify reports whether r hashes to ref.Checksum.
func (ChecksumVerifier) Verify(r io.Reader, ref interfaces.StoredFileReference) bool {
	if ref.Checksum.IsZero() {
		return false
	}
	digest, err := checksum.Sum(ref.Checksum.Algorithm, r)
	if err != nil {
		return false
	}
	return checksum.Equal(digest, ref.Checksum)
}

// NullVerifier accepts everything.
type NullVerifier struct{}

// Verify always returns true.
func (NullVerifier) Verify(io.Reader, interfaces.StoredFileReference) bool {
	return true
}
