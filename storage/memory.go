package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/storage-adapter/checksum"
	"github.com/ruteri/storage-adapter/interfaces"
	"go.uber.org/atomic"
)

// MemoryBackend keeps objects in process memory.
// It is intended for tests and local development.
type MemoryBackend struct {
	mu        sync.RWMutex
	objects   map[interfaces.BackendKey]memoryObject
	algorithm string
	name      string
	log       *slog.Logger

	puts    atomic.Int64
	gets    atomic.Int64
	exists  atomic.Int64
	deletes atomic.Int64
}

type memoryObject struct {
	data []byte
	meta interfaces.ObjectMetadata
}

// NewMemoryBackend creates an empty in-memory backend that reports
// digests using the given checksum algorithm (checksum.Default when empty).
func NewMemoryBackend(name, algorithm string, log *slog.Logger) (*MemoryBackend, error) {
	if algorithm == "" {
		algorithm = checksum.Default
	}
	if !checksum.Supported(algorithm) {
		return nil, fmt.Errorf("unsupported checksum algorithm: %s", algorithm)
	}
	if name == "" {
		name = "default"
	}
	if log == nil {
		log = slog.Default()
	}
	return &MemoryBackend{
		objects:   make(map[interfaces.BackendKey]memoryObject),
		algorithm: algorithm,
		name:      name,
		log:       log,
	}, nil
}

// Put stores a copy of the stream contents.
func (b *MemoryBackend) Put(ctx context.Context, key interfaces.BackendKey, r io.Reader, meta interfaces.ObjectMetadata) (interfaces.StoredFileReference, error) {
	b.puts.Inc()

	h, err := checksum.New(b.algorithm)
	if err != nil {
		return interfaces.StoredFileReference{}, err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(io.MultiWriter(&buf, h), r); err != nil {
		return interfaces.StoredFileReference{}, fmt.Errorf("failed to read content: %w", err)
	}

	b.mu.Lock()
	b.objects[key] = memoryObject{data: buf.Bytes(), meta: meta}
	b.mu.Unlock()

	b.log.Debug("Stored content in memory",
		slog.String("key", key.String()),
		slog.Int("size", buf.Len()))

	return interfaces.StoredFileReference{
		Key:       key,
		Size:      int64(buf.Len()),
		Checksum:  checksum.Finish(b.algorithm, h),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Get returns a reader over the stored bytes.
func (b *MemoryBackend) Get(ctx context.Context, key interfaces.BackendKey) (io.ReadCloser, error) {
	b.gets.Inc()

	b.mu.RLock()
	obj, ok := b.objects[key]
	b.mu.RUnlock()
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Exists reports whether key is stored.
func (b *MemoryBackend) Exists(ctx context.Context, key interfaces.BackendKey) (bool, error) {
	b.exists.Inc()

	b.mu.RLock()
	_, ok := b.objects[key]
	b.mu.RUnlock()
	return ok, nil
}

// Delete removes key if present.
func (b *MemoryBackend) Delete(ctx context.Context, key interfaces.BackendKey) error {
	b.deletes.Inc()

	b.mu.Lock()
	delete(b.objects, key)
	b.mu.Unlock()
	return nil
}

// Metadata returns the metadata recorded with key, for inspection in tests.
func (b *MemoryBackend) Metadata(key interfaces.BackendKey) (interfaces.ObjectMetadata, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[key]
	return obj.meta, ok
}

// Len returns the number of stored objects.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

// GetCalls returns how many times Get has been called.
func (b *MemoryBackend) GetCalls() int64 { return b.gets.Load() }

// PutCalls returns how many times Put has been called.
func (b *MemoryBackend) PutCalls() int64 { return b.puts.Load() }

// DeleteCalls returns how many times Delete has been called.
func (b *MemoryBackend) DeleteCalls() int64 { return b.deletes.Load() }

// ExistsCalls returns how many times Exists has been called.
func (b *MemoryBackend) ExistsCalls() int64 { return b.exists.Load() }

// Available always returns true.
func (b *MemoryBackend) Available(ctx context.Context) bool {
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *MemoryBackend) Name() string {
	return fmt.Sprintf("memory-%s", b.name)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *MemoryBackend) LocationURI() string {
	return fmt.Sprintf("memory://%s?checksum=%s", b.name, b.algorithm)
}
