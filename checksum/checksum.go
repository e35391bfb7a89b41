// Package checksum computes the content digests that backends report on
// write and verifiers recompute on upload.
package checksum

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sort"
	"strings"

	"github.com/ruteri/storage-adapter/interfaces"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Supported algorithm names.
const (
	MD5        = "md5"
	SHA256     = "sha256"
	BLAKE3     = "blake3"
	BLAKE2b256 = "blake2b-256"
)

// Default is used by backends that compute their own digest.
const Default = SHA256

var algorithms = map[string]func() hash.Hash{
	MD5:    md5.New,
	SHA256: sha256.New,
	BLAKE3: func() hash.Hash { return blake3.New() },
	BLAKE2b256: func() hash.Hash {
		// New256 only fails for keys longer than 64 bytes.
		h, _ := blake2b.New256(nil)
		return h
	},
}

// New returns a fresh hash for the named algorithm.
func New(algorithm string) (hash.Hash, error) {
	ctor, ok := algorithms[strings.ToLower(algorithm)]
	if !ok {
		return nil, fmt.Errorf("unsupported checksum algorithm: %s", algorithm)
	}
	return ctor(), nil
}

// Supported reports whether algorithm is known.
func Supported(algorithm string) bool {
	_, ok := algorithms[strings.ToLower(algorithm)]
	return ok
}

// Algorithms lists the supported algorithm names in sorted order.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sum hashes everything read from r.
func Sum(algorithm string, r io.Reader) (interfaces.Digest, error) {
	h, err := New(algorithm)
	if err != nil {
		return interfaces.Digest{}, err
	}
	if _, err := io.Copy(h, r); err != nil {
		return interfaces.Digest{}, fmt.Errorf("failed to hash content: %w", err)
	}
	return Finish(algorithm, h), nil
}

// SumBytes hashes data.
func SumBytes(algorithm string, data []byte) (interfaces.Digest, error) {
	h, err := New(algorithm)
	if err != nil {
		return interfaces.Digest{}, err
	}
	h.Write(data)
	return Finish(algorithm, h), nil
}

// Finish converts a running hash into a Digest.
func Finish(algorithm string, h hash.Hash) interfaces.Digest {
	return interfaces.Digest{
		Algorithm: strings.ToLower(algorithm),
		Value:     hex.EncodeToString(h.Sum(nil)),
	}
}

// Equal compares two digests. Digests of different algorithms never match.
func Equal(a, b interfaces.Digest) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	return strings.EqualFold(a.Algorithm, b.Algorithm) && strings.EqualFold(a.Value, b.Value)
}
