package storage

import (
	"testing"

	"github.com/ruteri/storage-adapter/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageBackendFactory(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name      string
		uri       string
		wantType  interface{}
		wantError bool
	}{
		{name: "memory", uri: "memory://unit?checksum=md5", wantType: &MemoryBackend{}},
		{name: "file", uri: "file://" + dir, wantType: &FileBackend{}},
		{name: "file with checksum", uri: "file://" + dir + "?checksum=blake2b-256", wantType: &FileBackend{}},
		{name: "s3", uri: "s3://bucket/prefix?region=eu-west-1", wantType: &S3Backend{}},
		{name: "s3 with credentials", uri: "s3://AK:SK@bucket/prefix?endpoint=http://localhost:9000", wantType: &S3Backend{}},
		{name: "minio", uri: "minio://AK:SK@localhost:9000/bucket/files?path_style=true", wantType: &MinioBackend{}},
		{name: "ipfs", uri: "ipfs://localhost:5001/files?timeout=5s", wantType: &IPFSBackend{}},
		{name: "vault", uri: "vault://token@vault.local:8200/secret/files", wantType: &VaultBackend{}},
		{name: "unsupported scheme", uri: "ftp://host/path", wantError: true},
		{name: "bad checksum", uri: "memory://bad?checksum=crc32", wantError: true},
		{name: "minio without bucket", uri: "minio://localhost:9000", wantError: true},
		{name: "ipfs bad timeout", uri: "ipfs://localhost:5001/?timeout=soon", wantError: true},
		{name: "vault without mount", uri: "vault://vault.local:8200", wantError: true},
	}

	factory := NewStorageBackendFactory(testLogger())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := factory.BackendFromURI(tt.uri)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, backend)
			assert.NotEmpty(t, backend.Name())
		})
	}
}

func TestStorageBackendFactory_UnsupportedSchemeIsInvalidLocation(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())
	_, err := factory.BackendFromURI("gopher://host")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestStorageBackendFactory_MemoryBackendsAreShared(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	a, err := factory.BackendFromURI("memory://shared")
	require.NoError(t, err)
	b, err := factory.BackendFromURI("memory://shared")
	require.NoError(t, err)
	c, err := factory.BackendFromURI("memory://other")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
