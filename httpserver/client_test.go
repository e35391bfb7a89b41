package httpserver

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ruteri/storage-adapter/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	srv := newTestServer(t, 0)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx := context.Background()
	client := NewClient(ts.URL + "/")

	desc, err := client.Upload(ctx, strings.NewReader("hello"), "r 1", "report.md", "text/markdown", map[string]string{"team": "infra"})
	require.NoError(t, err)
	assert.Equal(t, "blob://r%201/report.md", desc.ID)
	assert.Equal(t, "text/markdown", desc.ContentType)
	assert.Equal(t, map[string]string{"team": "infra"}, desc.Metadata)

	got, err := client.Describe(ctx, desc.ID)
	require.NoError(t, err)
	assert.Equal(t, desc.Checksum, got.Checksum)

	v1, err := client.UploadVersion(ctx, desc.ID, strings.NewReader("hello again"), "", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v1.Version)
	assert.Equal(t, "text/markdown", v1.ContentType)

	content, err := client.Download(ctx, desc.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello again", string(content))

	versions, err := client.Versions(ctx, desc.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	handles, err := client.Handles(ctx, desc.ID)
	require.NoError(t, err)
	assert.True(t, handles)

	require.NoError(t, client.Delete(ctx, desc.ID))

	_, err = client.Describe(ctx, desc.ID)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	_, err = client.Download(ctx, "nonexistent")
	assert.ErrorIs(t, err, interfaces.ErrInvalidFileID)
}
