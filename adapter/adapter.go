package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"strings"
	"time"

	"github.com/ruteri/storage-adapter/interfaces"
	"github.com/ruteri/storage-adapter/metrics"
	"github.com/ruteri/storage-adapter/versionindex"
)

// Scheme is the public id scheme of adapters configured without a prefix.
// Prefixed adapters use "<prefix>-blob".
const Scheme = "blob"

var (
	// ErrInvalidResource is returned when an upload has no usable resource identifier.
	ErrInvalidResource = errors.New("invalid resource")

	// ErrInvalidFilename is returned when a filename cannot be used as a key segment.
	ErrInvalidFilename = errors.New("invalid filename")
)

// Config holds construction-time settings for an Adapter.
type Config struct {
	// Backend stores the objects. Required.
	Backend interfaces.StorageBackend

	// Verifier checks freshly written content. Nil selects ChecksumVerifier;
	// use NullVerifier to disable verification.
	Verifier interfaces.Verifier

	// Generator lays out backend keys. Nil selects PrefixedIDPathGenerator
	// when Prefix is set and BasicIDPathGenerator otherwise.
	Generator interfaces.IDPathGenerator

	// Prefix namespaces keys and public ids.
	Prefix string

	// Versions records version sets. Nil selects an in-memory index.
	Versions interfaces.VersionIndex

	// SpoolDir holds temporary copies of non-seekable uploads.
	// Empty means os.TempDir().
	SpoolDir string

	Log *slog.Logger
}

// Adapter stores files for persisted resources through a single backend
// and hands out lazy File handles.
type Adapter struct {
	backend   interfaces.StorageBackend
	verifier  interfaces.Verifier
	generator interfaces.IDPathGenerator
	versions  interfaces.VersionIndex
	prefix    string
	scheme    string
	spoolDir  string
	log       *slog.Logger
}

// New creates an adapter from cfg.
func New(cfg *Config) (*Adapter, error) {
	if cfg == nil || cfg.Backend == nil {
		return nil, errors.New("adapter requires a storage backend")
	}

	if cfg.Prefix != "" && (!validSegment(cfg.Prefix) || strings.ContainsAny(cfg.Prefix, "/:")) {
		return nil, fmt.Errorf("invalid prefix %q", cfg.Prefix)
	}

	generator := cfg.Generator
	if generator == nil {
		if cfg.Prefix != "" {
			generator = PrefixedIDPathGenerator{}
		} else {
			generator = BasicIDPathGenerator{}
		}
	}
	switch generator.(type) {
	case BasicIDPathGenerator:
		if cfg.Prefix != "" {
			return nil, fmt.Errorf("prefix %q requires a prefixed generator", cfg.Prefix)
		}
	case PrefixedIDPathGenerator:
		if cfg.Prefix == "" {
			return nil, errors.New("prefixed generator requires a prefix")
		}
	}

	verifier := cfg.Verifier
	if verifier == nil {
		verifier = ChecksumVerifier{}
	}

	versions := cfg.Versions
	if versions == nil {
		versions = versionindex.NewMemoryIndex()
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	scheme := Scheme
	if cfg.Prefix != "" {
		scheme = cfg.Prefix + "-" + Scheme
	}

	return &Adapter{
		backend:   cfg.Backend,
		verifier:  verifier,
		generator: generator,
		versions:  versions,
		prefix:    cfg.Prefix,
		scheme:    scheme,
		spoolDir:  cfg.SpoolDir,
		log:       log.With(slog.String("backend", cfg.Backend.Name()), slog.String("scheme", scheme)),
	}, nil
}

// UploadOption customizes a single upload.
type UploadOption func(*uploadOptions)

type uploadOptions struct {
	contentType string
	metadata    map[string]string
}

// WithContentType records the media type of the content.
// Without it the type is guessed from the filename extension.
func WithContentType(contentType string) UploadOption {
	return func(o *uploadOptions) {
		o.contentType = contentType
	}
}

// WithMetadata passes opaque metadata through to the backend.
func WithMetadata(metadata map[string]string) UploadOption {
	return func(o *uploadOptions) {
		if o.metadata == nil {
			o.metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			o.metadata[k] = v
		}
	}
}

// Scheme returns the scheme of public ids issued by this adapter.
func (a *Adapter) Scheme() string { return a.scheme }

// Prefix returns the configured prefix, possibly empty.
func (a *Adapter) Prefix() string { return a.prefix }

// Backend returns the underlying storage backend.
func (a *Adapter) Backend() interfaces.StorageBackend { return a.backend }

// Upload stores content as the original version of filename under resource.
//
// The content is written once, verified, and returned as a handle without
// being read back. If verification fails the written object is removed and
// ErrIntegrityCheckFailed is returned. Uploading to a (resource, filename)
// pair that already has recorded versions appends a new version instead of
// replacing the original.
func (a *Adapter) Upload(ctx context.Context, content io.Reader, resource interfaces.Resource, filename string, opts ...UploadOption) (*File, error) {
	start := time.Now()

	if resource == nil || !validSegment(string(resource.ResourceID())) {
		metrics.RecordOperation("upload", metrics.ResultError, time.Since(start))
		return nil, ErrInvalidResource
	}
	if !validSegment(filename) {
		metrics.RecordOperation("upload", metrics.ResultError, time.Since(start))
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}

	options := applyOptions(filename, "", opts)
	key := a.generator.Generate(resource.ResourceID(), filename, a.prefix, 0)

	refs, err := a.versions.List(ctx, key)
	if err != nil && !errors.Is(err, interfaces.ErrContentNotFound) {
		metrics.RecordOperation("upload", metrics.ResultError, time.Since(start))
		return nil, fmt.Errorf("failed to list versions of %s: %w", key, err)
	}
	if len(refs) > 0 {
		// A recorded original is never overwritten
		ref, err := a.appendVersion(ctx, key, content, options)
		if err != nil {
			metrics.RecordOperation("upload", resultFor(err), time.Since(start))
			return nil, err
		}

		metrics.RecordOperation("upload", metrics.ResultOK, time.Since(start))
		a.log.Info("Uploaded existing file as new version",
			slog.String("key", ref.Key.String()),
			slog.Uint64("version", ref.Version),
			slog.Int64("size", ref.Size),
			slog.Duration("duration", time.Since(start)))
		return newFile(a.encodeID(key), ref, a.backend, a.log), nil
	}

	ref, err := a.write(ctx, key, content, 0, filename, options)
	if err != nil {
		metrics.RecordOperation("upload", resultFor(err), time.Since(start))
		return nil, err
	}

	if err := a.versions.Commit(ctx, key, ref); err != nil {
		// The object is still found through the backend when the index has no entry
		a.log.Warn("Failed to record original version",
			slog.String("key", key.String()),
			"err", err)
	}

	metrics.RecordOperation("upload", metrics.ResultOK, time.Since(start))
	a.log.Info("Uploaded file",
		slog.String("key", key.String()),
		slog.Int64("size", ref.Size),
		slog.Duration("duration", time.Since(start)))

	return newFile(a.encodeID(key), ref, a.backend, a.log), nil
}

// UploadVersion stores content as a new version of the file identified by id.
// The returned handle carries the same public id as the original upload.
// Returns ErrContentNotFound if id is unknown.
func (a *Adapter) UploadVersion(ctx context.Context, id string, content io.Reader, opts ...UploadOption) (*File, error) {
	start := time.Now()

	stable, err := a.parseID(id)
	if err != nil {
		metrics.RecordOperation("upload_version", metrics.ResultNotFound, time.Since(start))
		return nil, err
	}

	refs, err := a.versionSet(ctx, stable)
	if err != nil {
		metrics.RecordOperation("upload_version", resultFor(err), time.Since(start))
		return nil, err
	}
	latest := refs[len(refs)-1]

	_, filename, _, _ := a.generator.Parse(stable, a.prefix)
	options := applyOptions(filename, latest.ContentType, opts)

	ref, err := a.appendVersion(ctx, stable, content, options)
	if err != nil {
		metrics.RecordOperation("upload_version", resultFor(err), time.Since(start))
		return nil, err
	}

	metrics.RecordOperation("upload_version", metrics.ResultOK, time.Since(start))
	a.log.Info("Uploaded file version",
		slog.String("key", ref.Key.String()),
		slog.Uint64("version", ref.Version),
		slog.Int64("size", ref.Size),
		slog.Duration("duration", time.Since(start)))

	return newFile(id, ref, a.backend, a.log), nil
}

// Find returns a handle for the latest version of the file identified by id.
// No content is read.
func (a *Adapter) Find(ctx context.Context, id string) (*File, error) {
	start := time.Now()

	stable, err := a.parseID(id)
	if err != nil {
		metrics.RecordOperation("find", metrics.ResultNotFound, time.Since(start))
		return nil, err
	}

	refs, err := a.versionSet(ctx, stable)
	if err != nil {
		metrics.RecordOperation("find", resultFor(err), time.Since(start))
		return nil, err
	}

	metrics.RecordOperation("find", metrics.ResultOK, time.Since(start))
	return newFile(id, refs[len(refs)-1], a.backend, a.log), nil
}

// FindVersions returns handles for every version of the file identified by
// id, oldest first. Returns ErrContentNotFound if id is unknown.
func (a *Adapter) FindVersions(ctx context.Context, id string) ([]*File, error) {
	start := time.Now()

	stable, err := a.parseID(id)
	if err != nil {
		metrics.RecordOperation("find_versions", metrics.ResultNotFound, time.Since(start))
		return nil, err
	}

	refs, err := a.versionSet(ctx, stable)
	if err != nil {
		metrics.RecordOperation("find_versions", resultFor(err), time.Since(start))
		return nil, err
	}

	files := make([]*File, 0, len(refs))
	for _, ref := range refs {
		files = append(files, newFile(id, ref, a.backend, a.log))
	}

	metrics.RecordOperation("find_versions", metrics.ResultOK, time.Since(start))
	return files, nil
}

// Delete removes every version of the file identified by id.
// Deleting an unknown id is not an error.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	start := time.Now()

	stable, err := a.parseID(id)
	if err != nil {
		metrics.RecordOperation("delete", metrics.ResultNotFound, time.Since(start))
		return err
	}

	refs, err := a.versionSet(ctx, stable)
	if errors.Is(err, interfaces.ErrContentNotFound) {
		metrics.RecordOperation("delete", metrics.ResultOK, time.Since(start))
		return nil
	}
	if err != nil {
		metrics.RecordOperation("delete", metrics.ResultError, time.Since(start))
		return err
	}

	var errs []error
	for _, ref := range refs {
		if err := a.backend.Delete(ctx, ref.Key); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", ref.Key, err))
		}
	}
	if len(errs) > 0 {
		// Keep the index so a retry still finds the remaining objects
		metrics.RecordOperation("delete", metrics.ResultError, time.Since(start))
		return errors.Join(errs...)
	}

	if err := a.versions.Remove(ctx, stable); err != nil {
		metrics.RecordOperation("delete", metrics.ResultError, time.Since(start))
		return fmt.Errorf("failed to remove version index entry for %s: %w", stable, err)
	}

	metrics.RecordOperation("delete", metrics.ResultOK, time.Since(start))
	a.log.Info("Deleted file",
		slog.String("key", stable.String()),
		slog.Int("versions", len(refs)))
	return nil
}

// Handles reports whether id was issued by an adapter configured like this
// one. It never contacts the backend.
func (a *Adapter) Handles(id string) bool {
	_, err := a.parseID(id)
	return err == nil
}

// Close releases the version index.
func (a *Adapter) Close() error {
	return a.versions.Close()
}

func (a *Adapter) encodeID(key interfaces.BackendKey) string {
	return a.scheme + "://" + string(key)
}

// parseID decodes a public id into the stable key of its original version.
// Failures match both ErrInvalidFileID and ErrContentNotFound.
func (a *Adapter) parseID(id string) (interfaces.BackendKey, error) {
	scheme, rest, found := strings.Cut(id, "://")
	if !found || scheme != a.scheme {
		return "", fmt.Errorf("%w: %w: %q", interfaces.ErrInvalidFileID, interfaces.ErrContentNotFound, id)
	}

	key := interfaces.BackendKey(rest)
	_, _, version, ok := a.generator.Parse(key, a.prefix)
	if !ok || version != 0 {
		return "", fmt.Errorf("%w: %w: %q", interfaces.ErrInvalidFileID, interfaces.ErrContentNotFound, id)
	}
	return key, nil
}

// versionSet returns the recorded versions of stable. When the index has
// no entry but the original object exists, the index is reseeded with it.
func (a *Adapter) versionSet(ctx context.Context, stable interfaces.BackendKey) ([]interfaces.StoredFileReference, error) {
	refs, err := a.versions.List(ctx, stable)
	if err == nil && len(refs) > 0 {
		return refs, nil
	}
	if err != nil && !errors.Is(err, interfaces.ErrContentNotFound) {
		return nil, fmt.Errorf("failed to list versions of %s: %w", stable, err)
	}

	exists, err := a.backend.Exists(ctx, stable)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, stable)
	}

	_, filename, _, _ := a.generator.Parse(stable, a.prefix)
	ref := interfaces.StoredFileReference{
		Key:         stable,
		Filename:    filename,
		ContentType: mime.TypeByExtension(path.Ext(filename)),
	}

	a.log.Warn("Version index has no entry for stored object, reseeding",
		slog.String("key", stable.String()))
	if err := a.versions.Commit(ctx, stable, ref); err != nil {
		a.log.Warn("Failed to reseed version index",
			slog.String("key", stable.String()),
			"err", err)
	}

	return []interfaces.StoredFileReference{ref}, nil
}

// appendVersion reserves the next version of stable, writes content at its
// key and records it. Reserved versions are never handed back, so a failed
// write leaves a gap rather than a reused index.
func (a *Adapter) appendVersion(ctx context.Context, stable interfaces.BackendKey, content io.Reader, options uploadOptions) (interfaces.StoredFileReference, error) {
	resource, filename, _, _ := a.generator.Parse(stable, a.prefix)

	version, err := a.versions.Reserve(ctx, stable)
	if err != nil {
		return interfaces.StoredFileReference{}, fmt.Errorf("failed to reserve version for %s: %w", stable, err)
	}

	key := a.generator.Generate(resource, filename, a.prefix, version)

	ref, err := a.write(ctx, key, content, version, filename, options)
	if err != nil {
		return interfaces.StoredFileReference{}, err
	}

	if err := a.versions.Commit(ctx, stable, ref); err != nil {
		err = fmt.Errorf("failed to record version %d of %s: %w", version, stable, err)
		if derr := a.backend.Delete(ctx, key); derr != nil {
			err = errors.Join(err, fmt.Errorf("failed to remove unrecorded version: %w", derr))
		}
		return interfaces.StoredFileReference{}, err
	}
	return ref, nil
}

// write puts content at key and verifies it, removing the object if the
// verifier rejects it.
func (a *Adapter) write(ctx context.Context, key interfaces.BackendKey, content io.Reader, version uint64, filename string, options uploadOptions) (interfaces.StoredFileReference, error) {
	body, start, cleanup, err := rewindable(content, a.spoolDir)
	if err != nil {
		return interfaces.StoredFileReference{}, err
	}
	defer cleanup()

	ref, err := a.backend.Put(ctx, key, body, interfaces.ObjectMetadata{
		ContentType: options.contentType,
		Extra:       options.metadata,
	})
	if err != nil {
		a.log.Error("Failed to write file",
			slog.String("key", key.String()),
			"err", err)
		return interfaces.StoredFileReference{}, err
	}

	var verified bool
	if _, err := body.Seek(start, io.SeekStart); err != nil {
		a.log.Error("Failed to rewind uploaded content",
			slog.String("key", key.String()),
			"err", err)
	} else {
		verified = a.verifier.Verify(body, ref)
	}

	if !verified {
		a.log.Warn("Integrity check failed, removing written object",
			slog.String("key", key.String()),
			slog.String("checksum", ref.Checksum.String()))
		err := fmt.Errorf("%w: %s", interfaces.ErrIntegrityCheckFailed, key)
		if derr := a.backend.Delete(ctx, key); derr != nil {
			err = errors.Join(err, fmt.Errorf("failed to remove rejected object: %w", derr))
		}
		return interfaces.StoredFileReference{}, err
	}

	ref.Key = key
	ref.Version = version
	ref.Filename = filename
	ref.ContentType = options.contentType
	ref.Metadata = options.metadata
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now().UTC()
	}

	metrics.RecordUploadedBytes(ref.Size)
	return ref, nil
}

// rewindable returns a seekable view of r and the offset its content
// starts at. Non-seekable readers are spooled to a temporary file that
// cleanup removes.
func rewindable(r io.Reader, dir string) (io.ReadSeeker, int64, func(), error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		start, err := rs.Seek(0, io.SeekCurrent)
		if err == nil {
			return rs, start, func() {}, nil
		}
	}

	f, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	cleanup := func() {
		f.Close()
		os.Remove(f.Name())
	}

	if _, err := io.Copy(f, r); err != nil {
		cleanup()
		return nil, 0, nil, fmt.Errorf("failed to spool upload: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, 0, nil, fmt.Errorf("failed to rewind spool file: %w", err)
	}
	return f, 0, cleanup, nil
}

func applyOptions(filename, fallbackContentType string, opts []UploadOption) uploadOptions {
	var options uploadOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.contentType == "" {
		options.contentType = fallbackContentType
	}
	if options.contentType == "" {
		options.contentType = mime.TypeByExtension(path.Ext(filename))
	}
	return options
}

func resultFor(err error) string {
	switch {
	case errors.Is(err, interfaces.ErrIntegrityCheckFailed):
		return metrics.ResultIntegrity
	case errors.Is(err, interfaces.ErrContentNotFound):
		return metrics.ResultNotFound
	default:
		return metrics.ResultError
	}
}
