package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ruteri/storage-adapter/checksum"
	"github.com/ruteri/storage-adapter/interfaces"
)

// FileBackend implements a storage backend using the local file system.
// Keys map onto paths below the base directory.
type FileBackend struct {
	baseDir     string
	algorithm   string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file storage backend using the specified base directory.
// The directory is created if it doesn't exist.
func NewFileBackend(baseDir, algorithm string, log *slog.Logger) (*FileBackend, error) {
	if algorithm == "" {
		algorithm = checksum.Default
	}
	if !checksum.Supported(algorithm) {
		return nil, fmt.Errorf("unsupported checksum algorithm: %s", algorithm)
	}

	absDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	// Ensure base directory exists
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     absDir,
		algorithm:   algorithm,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", absDir),
	}, nil
}

// Put writes the stream to a temporary file and renames it into place.
func (b *FileBackend) Put(ctx context.Context, key interfaces.BackendKey, r io.Reader, meta interfaces.ObjectMetadata) (interfaces.StoredFileReference, error) {
	filePath, err := b.getFilePath(key)
	if err != nil {
		return interfaces.StoredFileReference{}, err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return interfaces.StoredFileReference{}, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".upload-*")
	if err != nil {
		return interfaces.StoredFileReference{}, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h, err := checksum.New(b.algorithm)
	if err != nil {
		tmp.Close()
		return interfaces.StoredFileReference{}, err
	}

	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		tmp.Close()
		return interfaces.StoredFileReference{}, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return interfaces.StoredFileReference{}, fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return interfaces.StoredFileReference{}, fmt.Errorf("failed to move file into place: %w", err)
	}

	b.log.Debug("Stored content in file",
		slog.String("path", filePath),
		slog.Int64("size", size))

	return interfaces.StoredFileReference{
		Key:       key,
		Size:      size,
		Checksum:  checksum.Finish(b.algorithm, h),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Get opens the file stored at key.
// Returns ErrContentNotFound if the file doesn't exist.
func (b *FileBackend) Get(ctx context.Context, key interfaces.BackendKey) (io.ReadCloser, error) {
	filePath, err := b.getFilePath(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, interfaces.ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	b.log.Debug("Opened content from file", slog.String("path", filePath))

	return f, nil
}

// Exists checks for a regular file at key.
func (b *FileBackend) Exists(ctx context.Context, key interfaces.BackendKey) (bool, error) {
	filePath, err := b.getFilePath(key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// Delete removes the file at key and prunes directories left empty.
func (b *FileBackend) Delete(ctx context.Context, key interfaces.BackendKey) error {
	filePath, err := b.getFilePath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	for dir := filepath.Dir(filePath); dir != b.baseDir && strings.HasPrefix(dir, b.baseDir); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}

	b.log.Debug("Deleted content from file", slog.String("path", filePath))
	return nil
}

// Available checks if the file backend is accessible by verifying the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

// getFilePath resolves key below the base directory, refusing keys that escape it.
func (b *FileBackend) getFilePath(key interfaces.BackendKey) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	filePath := filepath.Join(b.baseDir, filepath.FromSlash(string(key)))
	if !strings.HasPrefix(filePath, b.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes base directory", key)
	}
	return filePath, nil
}
