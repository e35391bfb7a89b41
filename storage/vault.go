package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/storage-adapter/checksum"
	"github.com/ruteri/storage-adapter/interfaces"
)

// VaultBackend implements a storage backend using the HashiCorp Vault KV v2
// secrets engine. Content is stored base64-encoded under {mount}/data/{path}/{key};
// the KV version number is reported as the backend version marker.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	algorithm   string
	log         *slog.Logger
	locationURI string
}

// VaultConfig holds connection settings for a Vault backend.
//
//   - Address: Vault server address (e.g. https://vault.example.com:8200)
//   - MountPath: KV v2 mount (e.g. "secret")
//   - DataPath: Path within the mount (e.g. "files")
//   - Token: Vault token; when empty the client falls back to VAULT_TOKEN
//   - ClientCert: optional TLS client certificate for cert authentication
type VaultConfig struct {
	Address    string
	MountPath  string
	DataPath   string
	Token      string
	ClientCert *tls.Certificate
	Algorithm  string
}

// NewVaultBackend creates a new Vault storage backend.
func NewVaultBackend(cfg VaultConfig, log *slog.Logger) (*VaultBackend, error) {
	algorithm := cfg.Algorithm
	if algorithm == "" {
		algorithm = checksum.Default
	}
	if !checksum.Supported(algorithm) {
		return nil, fmt.Errorf("unsupported checksum algorithm: %s", algorithm)
	}

	config := api.DefaultConfig()
	config.Address = cfg.Address
	if cfg.ClientCert != nil {
		config.HttpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					Certificates: []tls.Certificate{*cfg.ClientCert},
				},
			},
			Timeout: 30 * time.Second,
		}
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	mountPath := strings.Trim(cfg.MountPath, "/")
	dataPath := strings.Trim(cfg.DataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		algorithm:   algorithm,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(strings.TrimPrefix(cfg.Address, "https://"), "http://"), mountPath, dataPath),
	}, nil
}

// Put writes the content as a new KV version.
func (b *VaultBackend) Put(ctx context.Context, key interfaces.BackendKey, r io.Reader, meta interfaces.ObjectMetadata) (interfaces.StoredFileReference, error) {
	start := time.Now()
	path := b.secretPath("data", key)

	data, err := io.ReadAll(r)
	if err != nil {
		return interfaces.StoredFileReference{}, fmt.Errorf("failed to read content: %w", err)
	}

	digest, err := checksum.SumBytes(b.algorithm, data)
	if err != nil {
		return interfaces.StoredFileReference{}, err
	}

	fields := map[string]interface{}{
		"content":  base64.StdEncoding.EncodeToString(data),
		"checksum": digest.String(),
	}
	if meta.ContentType != "" {
		fields["content_type"] = meta.ContentType
	}
	for k, v := range meta.Extra {
		fields["meta_"+k] = v
	}

	secret, err := b.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"data": fields,
	})
	if err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("path", path),
			"err", err)
		return interfaces.StoredFileReference{}, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	ref := interfaces.StoredFileReference{
		Key:       key,
		Size:      int64(len(data)),
		Checksum:  digest,
		CreatedAt: time.Now().UTC(),
	}
	if secret != nil && secret.Data != nil {
		if v, ok := secret.Data["version"].(json.Number); ok {
			ref.BackendVersion = v.String()
		}
	}

	b.log.Info("Successfully stored content in Vault",
		slog.String("path", path),
		slog.String("kv_version", ref.BackendVersion),
		slog.Duration("duration", time.Since(start)))

	return ref, nil
}

// Get reads the latest KV version at key.
func (b *VaultBackend) Get(ctx context.Context, key interfaces.BackendKey) (io.ReadCloser, error) {
	start := time.Now()
	path := b.secretPath("data", key)

	fields, err := b.read(ctx, path)
	if err != nil {
		return nil, err
	}

	content, ok := fields["content"].(string)
	if !ok {
		b.log.Error("Content key not found in Vault data", slog.String("path", path))
		return nil, fmt.Errorf("content key not found in Vault data")
	}

	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("invalid content encoding in Vault data: %w", err)
	}

	b.log.Info("Successfully fetched content from Vault",
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)))

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Exists reads the secret at key.
func (b *VaultBackend) Exists(ctx context.Context, key interfaces.BackendKey) (bool, error) {
	_, err := b.read(ctx, b.secretPath("data", key))
	if err == interfaces.ErrContentNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes every KV version of key through the metadata endpoint.
func (b *VaultBackend) Delete(ctx context.Context, key interfaces.BackendKey) error {
	path := b.secretPath("metadata", key)
	if _, err := b.client.Logical().DeleteWithContext(ctx, path); err != nil {
		b.log.Error("Failed to delete from Vault",
			slog.String("path", path),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// Available checks if the Vault backend is accessible.
// It uses the health endpoint to verify that Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

func (b *VaultBackend) read(ctx context.Context, path string) (map[string]interface{}, error) {
	secret, err := b.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		b.log.Error("Failed to read from Vault",
			slog.String("path", path),
			"err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrContentNotFound
	}

	// A deleted latest version comes back with data set to null
	fields, ok := secret.Data["data"].(map[string]interface{})
	if !ok || fields == nil {
		return nil, interfaces.ErrContentNotFound
	}
	return fields, nil
}

// secretPath builds a KV v2 path: {mount}/{endpoint}/{dataPath}/{key}.
func (b *VaultBackend) secretPath(endpoint string, key interfaces.BackendKey) string {
	parts := []string{b.mountPath, endpoint}
	if b.dataPath != "" {
		parts = append(parts, b.dataPath)
	}
	parts = append(parts, string(key))
	return strings.Join(parts, "/")
}
