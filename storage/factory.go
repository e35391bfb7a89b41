package storage

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ruteri/storage-adapter/interfaces"
)

// StorageBackendFactory creates storage backends from location URIs.
// Memory backends are cached by name so that repeated lookups of the same
// memory:// URI share one store.
type StorageBackendFactory struct {
	log *slog.Logger

	mu     sync.Mutex
	memory map[string]*MemoryBackend
}

// NewStorageBackendFactory creates a new factory instance that can create storage backends.
func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{
		log:    logger,
		memory: make(map[string]*MemoryBackend),
	}
}

// StorageBackendFor creates a storage backend from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - memory:// - In-process storage for tests and development
//   - file:// - Local filesystem storage
//   - s3:// - Amazon S3 through aws-sdk-go
//   - minio:// - Any S3-compatible server through minio-go
//   - ipfs:// - MFS on an IPFS node
//   - vault:// - HashiCorp Vault KV v2
//
// Every scheme accepts a checksum=<algorithm> parameter where the backend
// computes digests itself.
func (sf *StorageBackendFactory) StorageBackendFor(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	switch location.Scheme {
	case "memory":
		return sf.createMemoryBackend(location)
	case "file":
		return sf.createFileBackend(location)
	case "s3":
		return sf.createS3Backend(location)
	case "minio":
		return sf.createMinioBackend(location)
	case "ipfs":
		return sf.createIPFSBackend(location)
	case "vault":
		return sf.createVaultBackend(location)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme: %s", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// BackendFromURI parses uri and creates the backend it names.
func (sf *StorageBackendFactory) BackendFromURI(uri string) (interfaces.StorageBackend, error) {
	location, err := interfaces.NewStorageBackendLocation(uri)
	if err != nil {
		return nil, err
	}
	return sf.StorageBackendFor(location)
}

// createMemoryBackend returns the cached in-memory backend for the host name.
// URI format: memory://name?checksum=sha256
func (sf *StorageBackendFactory) createMemoryBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	name := loc.Host
	if name == "" {
		name = "default"
	}

	sf.mu.Lock()
	defer sf.mu.Unlock()

	if b, ok := sf.memory[name]; ok {
		return b, nil
	}

	b, err := NewMemoryBackend(name, loc.GetParam("checksum"), sf.log)
	if err != nil {
		return nil, err
	}
	sf.memory[name] = b
	return b, nil
}

// createFileBackend creates a file system storage backend.
// URI format: file:///absolute/path/ or file://./relative/path/
func (sf *StorageBackendFactory) createFileBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating file backend", slog.String("uri", loc.String()))

	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI: %s", interfaces.ErrInvalidLocationURI, loc.String())
	}

	return NewFileBackend(path, loc.GetParam("checksum"), sf.log)
}

// createS3Backend creates an S3 storage backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=custom.s3.com
// Without embedded credentials the AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY
// environment variables are used.
func (sf *StorageBackendFactory) createS3Backend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating S3 backend", slog.String("bucket", loc.Host))

	if loc.Host == "" {
		return nil, fmt.Errorf("%w: missing bucket in S3 URI", interfaces.ErrInvalidLocationURI)
	}

	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	accessKey, secretKey := credentialsFrom(loc, "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY")

	return NewS3Backend(loc.Host, strings.TrimPrefix(loc.Path, "/"), region, loc.GetParam("endpoint"), accessKey, secretKey, sf.log)
}

// createMinioBackend creates a backend for an S3-compatible server.
// URI format: minio://[ACCESS_KEY:SECRET_KEY@]host:port/bucket/prefix?ssl=true&region=us-east-1&path_style=true
func (sf *StorageBackendFactory) createMinioBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating minio backend", slog.String("endpoint", loc.Host))

	parts := strings.SplitN(strings.TrimPrefix(loc.Path, "/"), "/", 2)
	if loc.Host == "" || parts[0] == "" {
		return nil, fmt.Errorf("%w: expected minio://host:port/bucket[/prefix]", interfaces.ErrInvalidLocationURI)
	}

	cfg := MinioConfig{
		Endpoint:  loc.Host,
		Region:    loc.GetParam("region"),
		Bucket:    parts[0],
		UseSSL:    loc.GetParamBool("ssl"),
		PathStyle: loc.GetParamBool("path_style"),
	}
	if len(parts) == 2 {
		cfg.Prefix = parts[1]
	}
	cfg.AccessKey, cfg.SecretKey = credentialsFrom(loc, "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY")

	return NewMinioBackend(cfg, sf.log)
}

// createIPFSBackend creates an IPFS storage backend.
// URI format: ipfs://host:port/mfs/root?timeout=30s
func (sf *StorageBackendFactory) createIPFSBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating IPFS backend", slog.String("uri", loc.String()))

	host, port, found := strings.Cut(loc.Host, ":")
	if !found || port == "" {
		port = "5001" // Default IPFS API port
	}
	if host == "" {
		return nil, fmt.Errorf("%w: missing host in IPFS URI", interfaces.ErrInvalidLocationURI)
	}

	timeout := 30 * time.Second
	if raw := loc.GetParam("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrInvalidLocationURI, raw)
		}
		timeout = d
	}

	root := loc.Path
	if strings.Trim(root, "/") == "" {
		root = "/storage-adapter"
	}

	return NewIPFSBackend(host, port, root, loc.GetParam("checksum"), timeout, sf.log)
}

// createVaultBackend creates a Vault KV v2 backend.
// URI format: vault://[TOKEN@]vault.example.com:8200/mount/path?tls=true
// Without an embedded token the VAULT_TOKEN environment variable is used.
func (sf *StorageBackendFactory) createVaultBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating Vault backend", slog.String("host", loc.Host))

	parts := strings.SplitN(strings.TrimPrefix(loc.Path, "/"), "/", 2)
	if loc.Host == "" || parts[0] == "" {
		return nil, fmt.Errorf("%w: expected vault://host:port/mount[/path]", interfaces.ErrInvalidLocationURI)
	}

	scheme := "https"
	if loc.GetParam("tls") == "false" {
		scheme = "http"
	}

	cfg := VaultConfig{
		Address:   fmt.Sprintf("%s://%s", scheme, loc.Host),
		MountPath: parts[0],
		Algorithm: loc.GetParam("checksum"),
	}
	if len(parts) == 2 {
		cfg.DataPath = parts[1]
	}
	if loc.Auth != nil {
		cfg.Token = loc.Auth.Username()
	} else {
		cfg.Token = os.Getenv("VAULT_TOKEN")
	}

	return NewVaultBackend(cfg, sf.log)
}

// credentialsFrom prefers credentials embedded in the URI over the environment.
func credentialsFrom(loc interfaces.StorageBackendLocation, accessEnv, secretEnv string) (string, string) {
	if loc.Auth != nil {
		secret, _ := loc.Auth.Password()
		return loc.Auth.Username(), secret
	}
	return os.Getenv(accessEnv), os.Getenv(secretEnv)
}
