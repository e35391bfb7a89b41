package interfaces

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
)

// BackendKey addresses one object inside a storage backend.
// Keys are hierarchical, slash-separated paths.
type BackendKey string

// String returns the key as a plain string.
func (k BackendKey) String() string {
	return string(k)
}

// Segments splits the key into its path segments.
func (k BackendKey) Segments() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), "/")
}

// Digest is a content checksum reported by a backend after a write.
type Digest struct {
	// Algorithm names the hash function, e.g. "md5", "sha256", "blake3".
	Algorithm string `json:"algorithm,omitempty"`
	// Value is the lowercase hex encoding of the digest.
	Value string `json:"value,omitempty"`
}

// IsZero reports whether the digest carries no value.
func (d Digest) IsZero() bool {
	return d.Algorithm == "" || d.Value == ""
}

// String returns "<algorithm>:<hex>".
func (d Digest) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Algorithm + ":" + d.Value
}

// ObjectMetadata is passed through to the backend on write.
// The adapter never interprets Extra.
type ObjectMetadata struct {
	ContentType string
	Extra       map[string]string
}

// StoredFileReference is the result of a successful backend write.
type StoredFileReference struct {
	Key  BackendKey `json:"key"`
	Size int64      `json:"size"`

	// Version is the adapter-assigned index within a version set.
	// Version 0 is the original upload.
	Version uint64 `json:"version"`

	// BackendVersion is an opaque marker assigned by backends that keep
	// their own object history (S3 VersionId, Vault KV version, IPFS CID).
	BackendVersion string `json:"backend_version,omitempty"`

	Checksum  Digest    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`

	// ContentType, Filename and Metadata are recorded so versions can be
	// rebuilt into handles without touching the backend.
	ContentType string            `json:"content_type,omitempty"`
	Filename    string            `json:"filename,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

var (
	// ErrContentNotFound is returned when requested content cannot be found in the storage backend,
	// or when an id or version is unknown to the adapter.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")

	// ErrIntegrityCheckFailed is returned when a verifier rejects freshly written content.
	// The written object has been removed by the time the caller sees this error.
	ErrIntegrityCheckFailed = errors.New("integrity check failed")

	// ErrInvalidFileID is returned when a public file identifier cannot be parsed.
	ErrInvalidFileID = errors.New("invalid file id")
)

// StorageBackend provides key-addressed object storage.
type StorageBackend interface {
	// Put writes the stream at key, replacing any existing object.
	Put(ctx context.Context, key BackendKey, r io.Reader, meta ObjectMetadata) (StoredFileReference, error)

	// Get opens the object at key. Returns ErrContentNotFound if it does not exist.
	// The caller must close the returned reader.
	Get(ctx context.Context, key BackendKey) (io.ReadCloser, error)

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key BackendKey) (bool, error)

	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key BackendKey) error

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// StorageBackendLocation represents URI for storage backend.
type StorageBackendLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   *url.Userinfo
}

// NewStorageBackendLocation creates a new storage location from a URI string with validation.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "memory", "file", "s3", "minio", "ipfs", "vault":
	default:
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return StorageBackendLocation{
		Raw:    uri,
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   parsed.User,
	}, nil
}

// String returns the original URI string.
func (loc StorageBackendLocation) String() string {
	return loc.Raw
}

// GetParam returns a query parameter value.
func (loc StorageBackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc StorageBackendLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

// StorageBackendFactory creates storage backends.
type StorageBackendFactory interface {
	// StorageBackendFor creates backend from URI.
	// Supports memory://, file://, s3://, minio://, ipfs://, vault://
	StorageBackendFor(location StorageBackendLocation) (StorageBackend, error)
}
