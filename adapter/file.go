package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/storage-adapter/interfaces"
	"github.com/ruteri/storage-adapter/metrics"
	"go.uber.org/atomic"
)

// File is a lazy handle on stored content. Creating a File or reading its
// metadata never contacts the backend; the first successful Read fetches
// the object once and caches it for the lifetime of the handle.
type File struct {
	id       string
	ref      interfaces.StoredFileReference
	metadata map[string]string

	backend interfaces.StorageBackend
	log     *slog.Logger

	mu        sync.Mutex
	populated atomic.Bool
	content   []byte
}

func newFile(id string, ref interfaces.StoredFileReference, backend interfaces.StorageBackend, log *slog.Logger) *File {
	metadata := make(map[string]string, len(ref.Metadata))
	for k, v := range ref.Metadata {
		metadata[k] = v
	}
	return &File{
		id:       id,
		ref:      ref,
		metadata: metadata,
		backend:  backend,
		log:      log,
	}
}

// ID returns the public identifier. All versions of a file share it.
func (f *File) ID() string { return f.id }

// Key returns the backend key of this version.
func (f *File) Key() interfaces.BackendKey { return f.ref.Key }

// OriginalFilename returns the filename given at upload.
func (f *File) OriginalFilename() string { return f.ref.Filename }

// ContentType returns the recorded media type, possibly empty.
func (f *File) ContentType() string { return f.ref.ContentType }

// Size returns the stored length in bytes, or 0 when it is unknown.
func (f *File) Size() int64 { return f.ref.Size }

// Version returns the version index; 0 is the original upload.
func (f *File) Version() uint64 { return f.ref.Version }

// Checksum returns the digest reported by the backend at write time.
func (f *File) Checksum() interfaces.Digest { return f.ref.Checksum }

// CreatedAt returns the time the version was written.
func (f *File) CreatedAt() time.Time { return f.ref.CreatedAt }

// Metadata returns a copy of the metadata passed at upload.
func (f *File) Metadata() map[string]string {
	out := make(map[string]string, len(f.metadata))
	for k, v := range f.metadata {
		out[k] = v
	}
	return out
}

// Reference returns the stored file reference backing this handle.
func (f *File) Reference() interfaces.StoredFileReference { return f.ref }

// Loaded reports whether content has been fetched.
func (f *File) Loaded() bool { return f.populated.Load() }

// Read returns the file content, fetching it on first use.
// The returned slice is shared between callers and must not be modified.
func (f *File) Read(ctx context.Context) ([]byte, error) {
	if f.populated.Load() {
		return f.content, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.populated.Load() {
		return f.content, nil
	}

	data, err := f.fetch(ctx)
	if err != nil {
		return nil, err
	}

	f.content = data
	f.populated.Store(true)
	return f.content, nil
}

// Stream returns a reader over the file content, fetching it on first use.
func (f *File) Stream(ctx context.Context) (io.Reader, error) {
	data, err := f.Read(ctx)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

func (f *File) fetch(ctx context.Context) ([]byte, error) {
	start := time.Now()

	rc, err := f.backend.Get(ctx, f.ref.Key)
	if err != nil {
		metrics.RecordFetch(false, time.Since(start))
		f.log.Debug("Failed to fetch file content",
			slog.String("key", f.ref.Key.String()),
			slog.String("backend", f.backend.Name()),
			"err", err)
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		metrics.RecordFetch(false, time.Since(start))
		return nil, fmt.Errorf("failed to read %s from %s: %w", f.ref.Key, f.backend.Name(), err)
	}

	metrics.RecordFetch(true, time.Since(start))
	f.log.Debug("Fetched file content",
		slog.String("key", f.ref.Key.String()),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}
