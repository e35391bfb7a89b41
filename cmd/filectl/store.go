package main

import (
	"context"
	"io"

	"github.com/ruteri/storage-adapter/adapter"
	"github.com/ruteri/storage-adapter/httpserver"
	"github.com/ruteri/storage-adapter/interfaces"
)

// fileStore is the operation set shared by the remote client and the
// in-process adapter.
type fileStore interface {
	Upload(ctx context.Context, content io.Reader, resource, filename, contentType string, metadata map[string]string) (httpserver.FileDescriptor, error)
	UploadVersion(ctx context.Context, id string, content io.Reader, contentType string, metadata map[string]string) (httpserver.FileDescriptor, error)
	Download(ctx context.Context, id string) ([]byte, error)
	Describe(ctx context.Context, id string) (httpserver.FileDescriptor, error)
	Versions(ctx context.Context, id string) ([]httpserver.FileDescriptor, error)
	Delete(ctx context.Context, id string) error
	Handles(ctx context.Context, id string) (bool, error)
}

type resourceID string

func (r resourceID) ResourceID() interfaces.ResourceIdentifier {
	return interfaces.ResourceIdentifier(r)
}

// localStore serves fileStore straight from an adapter.
type localStore struct {
	adapter *adapter.Adapter
}

func options(contentType string, metadata map[string]string) []adapter.UploadOption {
	var opts []adapter.UploadOption
	if contentType != "" {
		opts = append(opts, adapter.WithContentType(contentType))
	}
	if len(metadata) > 0 {
		opts = append(opts, adapter.WithMetadata(metadata))
	}
	return opts
}

func (s *localStore) Upload(ctx context.Context, content io.Reader, resource, filename, contentType string, metadata map[string]string) (httpserver.FileDescriptor, error) {
	f, err := s.adapter.Upload(ctx, content, resourceID(resource), filename, options(contentType, metadata)...)
	if err != nil {
		return httpserver.FileDescriptor{}, err
	}
	return httpserver.NewFileDescriptor(f), nil
}

func (s *localStore) UploadVersion(ctx context.Context, id string, content io.Reader, contentType string, metadata map[string]string) (httpserver.FileDescriptor, error) {
	f, err := s.adapter.UploadVersion(ctx, id, content, options(contentType, metadata)...)
	if err != nil {
		return httpserver.FileDescriptor{}, err
	}
	return httpserver.NewFileDescriptor(f), nil
}

func (s *localStore) Download(ctx context.Context, id string) ([]byte, error) {
	f, err := s.adapter.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return f.Read(ctx)
}

func (s *localStore) Describe(ctx context.Context, id string) (httpserver.FileDescriptor, error) {
	f, err := s.adapter.Find(ctx, id)
	if err != nil {
		return httpserver.FileDescriptor{}, err
	}
	return httpserver.NewFileDescriptor(f), nil
}

func (s *localStore) Versions(ctx context.Context, id string) ([]httpserver.FileDescriptor, error) {
	files, err := s.adapter.FindVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	descs := make([]httpserver.FileDescriptor, 0, len(files))
	for _, f := range files {
		descs = append(descs, httpserver.NewFileDescriptor(f))
	}
	return descs, nil
}

func (s *localStore) Delete(ctx context.Context, id string) error {
	return s.adapter.Delete(ctx, id)
}

func (s *localStore) Handles(_ context.Context, id string) (bool, error) {
	return s.adapter.Handles(id), nil
}

var (
	_ fileStore = (*localStore)(nil)
	_ fileStore = (*httpserver.Client)(nil)
)
