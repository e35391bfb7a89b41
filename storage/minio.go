package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/ruteri/storage-adapter/checksum"
	"github.com/ruteri/storage-adapter/interfaces"
)

// MinioConfig holds connection settings for an S3-compatible server.
type MinioConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool
}

// MinioBackend implements a storage backend on any S3-compatible server
// (MinIO, Ceph RGW, Garage) through minio-go.
type MinioBackend struct {
	client      *minio.Client
	bucketName  string
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewMinioBackend creates a backend for the configured bucket.
func NewMinioBackend(cfg MinioConfig, log *slog.Logger) (*MinioBackend, error) {
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioBackend{
		client:      client,
		bucketName:  cfg.Bucket,
		prefix:      strings.Trim(cfg.Prefix, "/"),
		log:         log,
		locationURI: fmt.Sprintf("minio://%s/%s/%s", cfg.Endpoint, cfg.Bucket, strings.Trim(cfg.Prefix, "/")),
	}, nil
}

// Put uploads the stream. Single-part uploads report the server ETag as an
// MD5 digest; multipart uploads fall back to a SHA-256 of the bytes sent.
func (b *MinioBackend) Put(ctx context.Context, key interfaces.BackendKey, r io.Reader, meta interfaces.ObjectMetadata) (interfaces.StoredFileReference, error) {
	start := time.Now()
	objectKey := b.getObjectKey(key)

	body, size, err := seekableBody(r)
	if err != nil {
		return interfaces.StoredFileReference{}, err
	}

	h, err := checksum.New(checksum.SHA256)
	if err != nil {
		return interfaces.StoredFileReference{}, err
	}

	info, err := b.client.PutObject(ctx, b.bucketName, objectKey, io.TeeReader(body, h), size, minio.PutObjectOptions{
		ContentType:  meta.ContentType,
		UserMetadata: meta.Extra,
	})
	if err != nil {
		b.log.Error("Failed to put object",
			slog.String("bucket", b.bucketName),
			slog.String("key", objectKey),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return interfaces.StoredFileReference{}, fmt.Errorf("failed to upload object: %w", err)
	}

	ref := interfaces.StoredFileReference{
		Key:            key,
		Size:           info.Size,
		BackendVersion: info.VersionID,
		CreatedAt:      time.Now().UTC(),
	}
	if etag := strings.Trim(info.ETag, `"`); etag != "" && !strings.Contains(etag, "-") {
		ref.Checksum = interfaces.Digest{Algorithm: checksum.MD5, Value: strings.ToLower(etag)}
	} else {
		ref.Checksum = checksum.Finish(checksum.SHA256, h)
	}

	b.log.Debug("Stored content in object store",
		slog.String("bucket", b.bucketName),
		slog.String("key", objectKey),
		slog.Int64("size", info.Size),
		slog.Duration("duration", time.Since(start)))

	return ref, nil
}

// Get opens the object. The first Stat performs the GET request so that a
// missing object is reported here rather than on the first Read.
func (b *MinioBackend) Get(ctx context.Context, key interfaces.BackendKey) (io.ReadCloser, error) {
	objectKey := b.getObjectKey(key)

	obj, err := b.client.GetObject(ctx, b.bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isMinioNotFound(err) {
			b.log.Debug("Content not found in object store",
				slog.String("bucket", b.bucketName),
				slog.String("key", objectKey))
			return nil, interfaces.ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return obj, nil
}

// Exists issues a StatObject (HEAD) request.
func (b *MinioBackend) Exists(ctx context.Context, key interfaces.BackendKey) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucketName, b.getObjectKey(key), minio.StatObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

// Delete removes the object.
func (b *MinioBackend) Delete(ctx context.Context, key interfaces.BackendKey) error {
	objectKey := b.getObjectKey(key)
	if err := b.client.RemoveObject(ctx, b.bucketName, objectKey, minio.RemoveObjectOptions{}); err != nil && !isMinioNotFound(err) {
		return fmt.Errorf("failed to remove object: %w", err)
	}
	return nil
}

// Available checks that the bucket exists and is reachable.
func (b *MinioBackend) Available(ctx context.Context) bool {
	ok, err := b.client.BucketExists(ctx, b.bucketName)
	if err != nil {
		b.log.Warn("Object store unavailable",
			slog.String("bucket", b.bucketName),
			"err", err)
		return false
	}
	return ok
}

// Name returns a unique identifier for this storage backend.
func (b *MinioBackend) Name() string {
	return fmt.Sprintf("minio-%s", b.bucketName)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *MinioBackend) LocationURI() string {
	return b.locationURI
}

func (b *MinioBackend) getObjectKey(key interfaces.BackendKey) string {
	if b.prefix == "" {
		return string(key)
	}
	return path.Join(b.prefix, string(key))
}

func isMinioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchBucket" {
		return false
	}
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
