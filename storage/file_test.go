package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ruteri/storage-adapter/checksum"
	"github.com/ruteri/storage-adapter/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := NewFileBackend(dir, checksum.BLAKE3, testLogger())
	require.NoError(t, err)
	assert.True(t, b.Available(ctx))

	key := interfaces.BackendKey("docs/r1/v2/report.pdf")
	ref, err := b.Put(ctx, key, strings.NewReader("content"), interfaces.ObjectMetadata{})
	require.NoError(t, err)
	assert.Equal(t, int64(7), ref.Size)

	expected, err := checksum.SumBytes(checksum.BLAKE3, []byte("content"))
	require.NoError(t, err)
	assert.Equal(t, expected, ref.Checksum)

	_, err = os.Stat(filepath.Join(dir, "docs", "r1", "v2", "report.pdf"))
	require.NoError(t, err)

	rc, err := b.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "content", string(data))

	exists, err := b.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	// A directory is not an object
	exists, err = b.Exists(ctx, "docs/r1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, b.Delete(ctx, key))
	_, err = b.Get(ctx, key)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	// Empty parents are pruned, the base directory stays
	_, err = os.Stat(filepath.Join(dir, "docs"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestFileBackend_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	b, err := NewFileBackend(t.TempDir(), "", testLogger())
	require.NoError(t, err)

	for _, key := range []interfaces.BackendKey{"", "../outside", "a/../../outside"} {
		_, err := b.Put(ctx, key, strings.NewReader("x"), interfaces.ObjectMetadata{})
		assert.Error(t, err, "key %q", key)
	}
}

func TestFileBackend_DeleteMissingKey(t *testing.T) {
	b, err := NewFileBackend(t.TempDir(), "", testLogger())
	require.NoError(t, err)
	assert.NoError(t, b.Delete(context.Background(), "missing/file"))
}
