package adapter

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/ruteri/storage-adapter/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestFile_ConcurrentFirstReads(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend(t)
	a := newAdapter(t, Config{Backend: backend})

	file, err := a.Upload(ctx, strings.NewReader("shared content"), testResource{id: "r1"}, "abc")
	require.NoError(t, err)

	const readers = 32
	var wg sync.WaitGroup
	results := make([]string, readers)
	start := make(chan struct{})
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			data, err := file.Read(ctx)
			if assert.NoError(t, err) {
				results[i] = string(data)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "shared content", r)
	}
	assert.Equal(t, int64(1), backend.GetCalls())
}

func TestFile_FailedFetchIsRetried(t *testing.T) {
	ctx := context.Background()
	backend := new(MockStorageBackend)
	key := interfaces.BackendKey("r1/abc")
	backend.On("Get", mock.Anything, key).Return(nil, interfaces.ErrBackendUnavailable).Once()
	backend.On("Get", mock.Anything, key).Return(io.NopCloser(strings.NewReader("abc")), nil).Once()

	file := newFile("blob://r1/abc", interfaces.StoredFileReference{Key: key, Size: 3}, backend, testLogger())

	_, err := file.Read(ctx)
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
	assert.False(t, file.Loaded())

	data, err := file.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	_, err = file.Read(ctx)
	require.NoError(t, err)
	backend.AssertNumberOfCalls(t, "Get", 2)
}

func TestFile_MissingObject(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend(t)

	file := newFile("blob://r1/abc", interfaces.StoredFileReference{Key: "r1/abc"}, backend, testLogger())
	_, err := file.Read(ctx)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}

func TestFile_Stream(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend(t)
	a := newAdapter(t, Config{Backend: backend})

	file, err := a.Upload(ctx, strings.NewReader("streamed"), testResource{id: "r1"}, "abc")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		r, err := file.Stream(ctx)
		require.NoError(t, err)
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "streamed", string(data))
	}
	assert.Equal(t, int64(1), backend.GetCalls())
}

func TestFile_MetadataIsCopied(t *testing.T) {
	ref := interfaces.StoredFileReference{Key: "r1/abc", Metadata: map[string]string{"a": "1"}}
	file := newFile("blob://r1/abc", ref, nil, testLogger())

	md := file.Metadata()
	md["a"] = "2"
	assert.Equal(t, "1", file.Metadata()["a"])

	ref.Metadata["a"] = "3"
	assert.Equal(t, "1", file.Metadata()["a"])
}
