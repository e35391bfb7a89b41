package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ruteri/storage-adapter/adapter"
	"github.com/ruteri/storage-adapter/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := storage.NewMemoryBackend("filectl", "", logger)
	require.NoError(t, err)

	a, err := adapter.New(&adapter.Config{Backend: backend, Prefix: "ops", Log: logger})
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	var s fileStore = &localStore{adapter: a}

	desc, err := s.Upload(ctx, strings.NewReader("a,b\n"), "r1", "table.csv", "", map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "ops-blob://ops/r1/table.csv", desc.ID)
	assert.Equal(t, map[string]string{"k": "v"}, desc.Metadata)

	_, err = s.UploadVersion(ctx, desc.ID, strings.NewReader("a,b,c\n"), "", nil)
	require.NoError(t, err)

	data, err := s.Download(ctx, desc.ID)
	require.NoError(t, err)
	assert.Equal(t, "a,b,c\n", string(data))

	versions, err := s.Versions(ctx, desc.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	ok, err := s.Handles(ctx, desc.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, desc.ID))
	_, err = s.Describe(ctx, desc.ID)
	assert.Error(t, err)
}

func TestParseMeta(t *testing.T) {
	meta, err := parseMeta([]string{"a=1", "b=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y"}, meta)

	meta, err = parseMeta(nil)
	require.NoError(t, err)
	assert.Nil(t, meta)

	_, err = parseMeta([]string{"novalue"})
	assert.Error(t, err)
}
