package storage

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ruteri/storage-adapter/checksum"
	"github.com/ruteri/storage-adapter/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMemoryBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := NewMemoryBackend("test", checksum.SHA256, testLogger())
	require.NoError(t, err)

	key := interfaces.BackendKey("r1/abc")
	ref, err := b.Put(ctx, key, strings.NewReader("hello"), interfaces.ObjectMetadata{
		ContentType: "text/plain",
		Extra:       map[string]string{"owner": "alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, key, ref.Key)
	assert.Equal(t, int64(5), ref.Size)
	assert.Equal(t, checksum.SHA256, ref.Checksum.Algorithm)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", ref.Checksum.Value)

	exists, err := b.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := b.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))

	meta, ok := b.Metadata(key)
	require.True(t, ok)
	assert.Equal(t, "text/plain", meta.ContentType)
	assert.Equal(t, "alice", meta.Extra["owner"])

	require.NoError(t, b.Delete(ctx, key))
	exists, err = b.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = b.Get(ctx, key)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	assert.Equal(t, int64(1), b.PutCalls())
	assert.Equal(t, int64(2), b.GetCalls())
	assert.Equal(t, int64(2), b.ExistsCalls())
	assert.Equal(t, int64(1), b.DeleteCalls())
}

func TestMemoryBackend_DeleteMissingKey(t *testing.T) {
	b, err := NewMemoryBackend("", "", testLogger())
	require.NoError(t, err)
	assert.NoError(t, b.Delete(context.Background(), "nope"))
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, "memory-default", b.Name())
	assert.Equal(t, "memory://default?checksum=sha256", b.LocationURI())
}

func TestMemoryBackend_UnsupportedAlgorithm(t *testing.T) {
	_, err := NewMemoryBackend("test", "crc32", testLogger())
	assert.Error(t, err)
}

func TestMemoryBackend_Overwrite(t *testing.T) {
	ctx := context.Background()
	b, err := NewMemoryBackend("test", checksum.MD5, testLogger())
	require.NoError(t, err)

	_, err = b.Put(ctx, "k", strings.NewReader("one"), interfaces.ObjectMetadata{})
	require.NoError(t, err)
	_, err = b.Put(ctx, "k", strings.NewReader("two"), interfaces.ObjectMetadata{})
	require.NoError(t, err)

	rc, err := b.Get(ctx, "k")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "two", string(data))
	assert.Equal(t, 1, b.Len())
}
