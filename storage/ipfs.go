package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/storage-adapter/checksum"
	"github.com/ruteri/storage-adapter/interfaces"
)

// IPFSBackend implements a storage backend on the mutable file system (MFS)
// of an IPFS node. Keys become MFS paths below a root directory; every write
// yields a new CID, which is reported as the backend version marker.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	root        string
	algorithm   string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates a new IPFS storage backend connected to the API at host:port.
// Objects live under root in the node's MFS.
func NewIPFSBackend(host, port, root, algorithm string, timeout time.Duration, log *slog.Logger) (*IPFSBackend, error) {
	if algorithm == "" {
		algorithm = checksum.Default
	}
	if !checksum.Supported(algorithm) {
		return nil, fmt.Errorf("unsupported checksum algorithm: %s", algorithm)
	}

	apiURL := fmt.Sprintf("%s:%s", host, port)
	root = "/" + strings.Trim(root, "/")

	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	return &IPFSBackend{
		shell:       sh,
		host:        host,
		port:        port,
		root:        root,
		algorithm:   algorithm,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s?timeout=%s", apiURL, root, timeout),
	}, nil
}

// Put writes the stream to MFS, creating parent directories as needed.
func (b *IPFSBackend) Put(ctx context.Context, key interfaces.BackendKey, r io.Reader, meta interfaces.ObjectMetadata) (interfaces.StoredFileReference, error) {
	start := time.Now()
	mfsPath := b.getMFSPath(key)

	h, err := checksum.New(b.algorithm)
	if err != nil {
		return interfaces.StoredFileReference{}, err
	}
	counter := &countingWriter{}

	err = b.shell.FilesWrite(ctx, mfsPath, io.TeeReader(r, io.MultiWriter(h, counter)),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		b.log.Error("Failed to write data to IPFS",
			slog.String("path", mfsPath),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return interfaces.StoredFileReference{}, fmt.Errorf("failed to write data to IPFS: %w", err)
	}

	ref := interfaces.StoredFileReference{
		Key:       key,
		Size:      counter.n,
		Checksum:  checksum.Finish(b.algorithm, h),
		CreatedAt: time.Now().UTC(),
	}

	stat, err := b.shell.FilesStat(ctx, mfsPath)
	if err != nil {
		b.log.Warn("Failed to stat written file",
			slog.String("path", mfsPath),
			"err", err)
	} else {
		ref.BackendVersion = stat.Hash
		if int64(stat.Size) != counter.n {
			return ref, fmt.Errorf("IPFS stored %d bytes, expected %d", stat.Size, counter.n)
		}
	}

	b.log.Debug("Stored content in IPFS",
		slog.String("path", mfsPath),
		slog.String("cid", ref.BackendVersion),
		slog.Int64("size", ref.Size),
		slog.Duration("duration", time.Since(start)))

	return ref, nil
}

// Get opens the MFS file at key.
// Returns ErrContentNotFound if the content doesn't exist or ErrBackendUnavailable
// if the node can't be reached.
func (b *IPFSBackend) Get(ctx context.Context, key interfaces.BackendKey) (io.ReadCloser, error) {
	start := time.Now()
	mfsPath := b.getMFSPath(key)

	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := b.shell.FilesRead(ctx, mfsPath)
	if err != nil {
		if isIPFSNotFound(err) {
			b.log.Debug("Content not found in IPFS",
				slog.String("path", mfsPath),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrContentNotFound
		}

		b.log.Error("Failed to fetch data from IPFS",
			slog.String("path", mfsPath),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to fetch data from IPFS: %w", err)
	}

	return reader, nil
}

// Exists stats the MFS path.
func (b *IPFSBackend) Exists(ctx context.Context, key interfaces.BackendKey) (bool, error) {
	stat, err := b.shell.FilesStat(ctx, b.getMFSPath(key))
	if err != nil {
		if isIPFSNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat IPFS path: %w", err)
	}
	return stat.Type == "file", nil
}

// Delete removes the MFS entry. The underlying blocks are left to the node's
// garbage collector.
func (b *IPFSBackend) Delete(ctx context.Context, key interfaces.BackendKey) error {
	mfsPath := b.getMFSPath(key)
	if err := b.shell.FilesRm(ctx, mfsPath, true); err != nil && !isIPFSNotFound(err) {
		return fmt.Errorf("failed to remove IPFS path: %w", err)
	}
	return nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

// getMFSPath generates an MFS path for key.
func (b *IPFSBackend) getMFSPath(key interfaces.BackendKey) string {
	return path.Join(b.root, string(key))
}

func isIPFSNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "file does not exist") || strings.Contains(msg, "no link named")
}

type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}
