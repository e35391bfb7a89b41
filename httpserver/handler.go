package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/storage-adapter/adapter"
	"github.com/ruteri/storage-adapter/interfaces"
)

const (
	// MetadataHeaderPrefix marks request headers that are passed through to
	// the backend as opaque metadata, e.g. X-File-Meta-Owner: alice.
	MetadataHeaderPrefix = "X-File-Meta-"

	// VersionHeader carries the version index of returned content.
	VersionHeader = "X-File-Version"

	// defaultMaxUploadSize is the upload limit when none is configured (64MB).
	defaultMaxUploadSize = 64 << 20
)

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// FileDescriptor is the JSON view of a file handle. Building one never
// reads file content.
type FileDescriptor struct {
	ID          string            `json:"id"`
	Key         string            `json:"key"`
	Filename    string            `json:"filename"`
	ContentType string            `json:"content_type,omitempty"`
	Size        int64             `json:"size"`
	Version     uint64            `json:"version"`
	Checksum    string            `json:"checksum,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewFileDescriptor describes f.
func NewFileDescriptor(f *adapter.File) FileDescriptor {
	return FileDescriptor{
		ID:          f.ID(),
		Key:         f.Key().String(),
		Filename:    f.OriginalFilename(),
		ContentType: f.ContentType(),
		Size:        f.Size(),
		Version:     f.Version(),
		Checksum:    f.Checksum().String(),
		CreatedAt:   f.CreatedAt(),
		Metadata:    f.Metadata(),
	}
}

// pathResource adapts a resource id taken from the URL.
type pathResource string

func (r pathResource) ResourceID() interfaces.ResourceIdentifier {
	return interfaces.ResourceIdentifier(r)
}

// Handler serves the files API over a single adapter.
type Handler struct {
	adapter       *adapter.Adapter
	maxUploadSize int64
	log           *slog.Logger
}

// NewHandler creates a new HTTP request handler for the adapter.
// A maxUploadSize of zero selects a 64MB limit.
func NewHandler(a *adapter.Adapter, maxUploadSize int64, log *slog.Logger) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return &Handler{
		adapter:       a,
		maxUploadSize: maxUploadSize,
		log:           log,
	}
}

// HandleUpload stores the request body as a new file.
//
// URL format: POST /api/files/{resource_id}/{filename}
// The Content-Type header is recorded with the file; X-File-Meta-* headers
// are passed through as metadata.
//
// Response: 201 with a FileDescriptor.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "resource_id")
	filename := chi.URLParam(r, "filename")

	body := http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	defer body.Close()

	file, err := h.adapter.Upload(r.Context(), body, pathResource(resourceID), filename, uploadOptions(r)...)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info("File uploaded",
		slog.String("id", file.ID()),
		slog.Int64("size", file.Size()))

	writeJSON(w, http.StatusCreated, NewFileDescriptor(file))
}

// HandleUploadVersion stores the request body as a new version of a file.
//
// URL format: POST /api/versions?id=<file id>
//
// Response: 201 with a FileDescriptor whose id equals the requested id.
func (h *Handler) HandleUploadVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireID(w, r)
	if !ok {
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	defer body.Close()

	file, err := h.adapter.UploadVersion(r.Context(), id, body, uploadOptions(r)...)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info("File version uploaded",
		slog.String("id", file.ID()),
		slog.Uint64("version", file.Version()))

	writeJSON(w, http.StatusCreated, NewFileDescriptor(file))
}

// HandleDownload returns the content of the latest version.
//
// URL format: GET /api/files?id=<file id>
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireID(w, r)
	if !ok {
		return
	}

	file, err := h.adapter.Find(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	data, err := file.Read(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	contentType := file.ContentType()
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set(VersionHeader, strconv.FormatUint(file.Version(), 10))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HandleMetadata describes the latest version without reading content.
//
// URL format: GET /api/files/meta?id=<file id>
func (h *Handler) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireID(w, r)
	if !ok {
		return
	}

	file, err := h.adapter.Find(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, NewFileDescriptor(file))
}

// HandleDelete removes every version of a file.
//
// URL format: DELETE /api/files?id=<file id>
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireID(w, r)
	if !ok {
		return
	}

	if err := h.adapter.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleListVersions lists every version, oldest first.
//
// URL format: GET /api/versions?id=<file id>
func (h *Handler) HandleListVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireID(w, r)
	if !ok {
		return
	}

	files, err := h.adapter.FindVersions(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]FileDescriptor, 0, len(files))
	for _, f := range files {
		out = append(out, NewFileDescriptor(f))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleHandles reports whether the adapter owns an id.
//
// URL format: GET /api/handles?id=<file id>
func (h *Handler) HandleHandles(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	writeJSON(w, http.StatusOK, map[string]bool{"handles": h.adapter.Handles(id)})
}

func (h *Handler) requireID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	reqErr := classify(err)
	if reqErr.StatusCode >= http.StatusInternalServerError {
		h.log.Error("Request failed", "err", err)
	} else {
		h.log.Debug("Request rejected",
			slog.Int("status", reqErr.StatusCode),
			"err", err)
	}
	http.Error(w, reqErr.Error(), reqErr.StatusCode)
}

// classify maps adapter and backend errors onto HTTP status codes.
func classify(err error) *RequestError {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, interfaces.ErrInvalidFileID),
		errors.Is(err, adapter.ErrInvalidResource),
		errors.Is(err, adapter.ErrInvalidFilename):
		return &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	case errors.As(err, &maxBytesErr):
		return &RequestError{StatusCode: http.StatusRequestEntityTooLarge, Err: fmt.Errorf("upload exceeds %d bytes", maxBytesErr.Limit)}
	case errors.Is(err, interfaces.ErrIntegrityCheckFailed):
		return &RequestError{StatusCode: http.StatusUnprocessableEntity, Err: err}
	case errors.Is(err, interfaces.ErrContentNotFound):
		return &RequestError{StatusCode: http.StatusNotFound, Err: err}
	case errors.Is(err, interfaces.ErrBackendUnavailable):
		return &RequestError{StatusCode: http.StatusServiceUnavailable, Err: err}
	default:
		return &RequestError{StatusCode: http.StatusInternalServerError, Err: errors.New("internal error")}
	}
}

func uploadOptions(r *http.Request) []adapter.UploadOption {
	var opts []adapter.UploadOption
	if ct := r.Header.Get("Content-Type"); ct != "" {
		opts = append(opts, adapter.WithContentType(ct))
	}

	metadata := map[string]string{}
	for name, values := range r.Header {
		if len(values) == 0 {
			continue
		}
		if key, ok := strings.CutPrefix(name, MetadataHeaderPrefix); ok && key != "" {
			metadata[strings.ToLower(key)] = values[0]
		}
	}
	if len(metadata) > 0 {
		opts = append(opts, adapter.WithMetadata(metadata))
	}
	return opts
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
