package versionindex

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ruteri/storage-adapter/interfaces"
)

// Open creates a version index from a URI. An empty URI selects memory://.
func Open(ctx context.Context, uri string) (interfaces.VersionIndex, error) {
	if uri == "" {
		return NewMemoryIndex(), nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory":
		return NewMemoryIndex(), nil
	case "redis", "rediss":
		namespace := u.Query().Get("namespace")
		q := u.Query()
		q.Del("namespace")
		u.RawQuery = q.Encode()
		return NewRedisIndexFromURL(ctx, u.String(), namespace)
	case "badger":
		if u.Host == "memory" {
			return NewBadgerIndex("")
		}
		dir := u.Host + u.Path
		if dir == "" {
			return nil, fmt.Errorf("%w: empty path in badger URI", interfaces.ErrInvalidLocationURI)
		}
		return NewBadgerIndex(dir)
	case "sqlite":
		return NewSQLiteIndex(u.Host + u.Path)
	default:
		return nil, fmt.Errorf("%w: unsupported version index scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}
