package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/storage-adapter/interfaces"
)

// Client calls the files API of a remote server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL
// (e.g. "http://localhost:8080"). The timeout defaults to 30 seconds.
func NewClient(baseURL string, timeout ...time.Duration) *Client {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// Upload stores content as a new file of resource.
func (c *Client) Upload(ctx context.Context, content io.Reader, resource, filename, contentType string, metadata map[string]string) (FileDescriptor, error) {
	target := fmt.Sprintf("%s/api/files/%s/%s", c.baseURL, url.PathEscape(resource), url.PathEscape(filename))

	var desc FileDescriptor
	err := c.do(ctx, http.MethodPost, target, content, uploadHeaders(contentType, metadata), http.StatusCreated, &desc)
	return desc, err
}

// UploadVersion stores content as a new version of the file identified by id.
func (c *Client) UploadVersion(ctx context.Context, id string, content io.Reader, contentType string, metadata map[string]string) (FileDescriptor, error) {
	var desc FileDescriptor
	err := c.do(ctx, http.MethodPost, c.withID("/api/versions", id), content, uploadHeaders(contentType, metadata), http.StatusCreated, &desc)
	return desc, err
}

// Download returns the content of the latest version.
func (c *Client) Download(ctx context.Context, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.withID("/api/files", id), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}
	return io.ReadAll(resp.Body)
}

// Describe returns the descriptor of the latest version.
func (c *Client) Describe(ctx context.Context, id string) (FileDescriptor, error) {
	var desc FileDescriptor
	err := c.do(ctx, http.MethodGet, c.withID("/api/files/meta", id), nil, nil, http.StatusOK, &desc)
	return desc, err
}

// Versions lists every version, oldest first.
func (c *Client) Versions(ctx context.Context, id string) ([]FileDescriptor, error) {
	var descs []FileDescriptor
	err := c.do(ctx, http.MethodGet, c.withID("/api/versions", id), nil, nil, http.StatusOK, &descs)
	return descs, err
}

// Delete removes every version of the file.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.withID("/api/files", id), nil, nil, http.StatusNoContent, nil)
}

// Handles reports whether the server's adapter owns id.
func (c *Client) Handles(ctx context.Context, id string) (bool, error) {
	var result struct {
		Handles bool `json:"handles"`
	}
	err := c.do(ctx, http.MethodGet, c.withID("/api/handles", id), nil, nil, http.StatusOK, &result)
	return result.Handles, err
}

func (c *Client) withID(path, id string) string {
	return c.baseURL + path + "?id=" + url.QueryEscape(id)
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, headers map[string]string, expected int, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != expected {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func uploadHeaders(contentType string, metadata map[string]string) map[string]string {
	headers := make(map[string]string, len(metadata)+1)
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	for k, v := range metadata {
		headers[MetadataHeaderPrefix+k] = v
	}
	return headers
}

// responseError maps a failed response back onto the storage error sentinels.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", interfaces.ErrInvalidFileID, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, msg)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", interfaces.ErrIntegrityCheckFailed, msg)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", interfaces.ErrBackendUnavailable, msg)
	default:
		return &RequestError{StatusCode: resp.StatusCode, Err: fmt.Errorf("request failed with code %d: %s", resp.StatusCode, msg)}
	}
}
