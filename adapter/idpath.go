package adapter

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/ruteri/storage-adapter/interfaces"
)

// BasicIDPathGenerator lays keys out as <id>/<filename>, with an @v<n>
// segment before the filename for versions after the original.
// The prefix argument is ignored.
type BasicIDPathGenerator struct{}

// Generate returns the key for one version of filename under resource.
func (BasicIDPathGenerator) Generate(resource interfaces.ResourceIdentifier, filename string, _ string, version uint64) interfaces.BackendKey {
	return joinKey(nil, resource, filename, version)
}

// Matches reports whether key has the shape of an unprefixed key.
func (g BasicIDPathGenerator) Matches(key interfaces.BackendKey, prefix string) bool {
	_, _, _, ok := g.Parse(key, prefix)
	return ok
}

// Parse splits an unprefixed key into its parts.
func (BasicIDPathGenerator) Parse(key interfaces.BackendKey, _ string) (interfaces.ResourceIdentifier, string, uint64, bool) {
	return splitKey(key.Segments())
}

// PrefixedIDPathGenerator lays keys out as <prefix>/<id>/<filename>, with an
// @v<n> segment before the filename for versions after the original.
type PrefixedIDPathGenerator struct{}

// Generate returns the key for one version of filename under resource in
// the namespace of prefix.
func (PrefixedIDPathGenerator) Generate(resource interfaces.ResourceIdentifier, filename string, prefix string, version uint64) interfaces.BackendKey {
	return joinKey([]string{prefix}, resource, filename, version)
}

// Matches reports whether key lives in the namespace of prefix.
func (g PrefixedIDPathGenerator) Matches(key interfaces.BackendKey, prefix string) bool {
	_, _, _, ok := g.Parse(key, prefix)
	return ok
}

// Parse strips prefix from key and splits the remainder into its parts.
func (PrefixedIDPathGenerator) Parse(key interfaces.BackendKey, prefix string) (interfaces.ResourceIdentifier, string, uint64, bool) {
	if prefix == "" {
		return "", "", 0, false
	}
	segments := key.Segments()
	if len(segments) < 1 || segments[0] != escapeSegment(prefix) {
		return "", "", 0, false
	}
	return splitKey(segments[1:])
}

func joinKey(head []string, resource interfaces.ResourceIdentifier, filename string, version uint64) interfaces.BackendKey {
	segments := make([]string, 0, len(head)+3)
	for _, s := range head {
		segments = append(segments, escapeSegment(s))
	}
	segments = append(segments, escapeSegment(string(resource)))
	if version > 0 {
		segments = append(segments, versionSegment(version))
	}
	segments = append(segments, escapeSegment(filename))
	return interfaces.BackendKey(strings.Join(segments, "/"))
}

// splitKey decodes [id, filename] or [id, @v<n>, filename].
func splitKey(segments []string) (interfaces.ResourceIdentifier, string, uint64, bool) {
	var version uint64
	switch len(segments) {
	case 2:
	case 3:
		v, ok := parseVersionSegment(segments[1])
		if !ok {
			return "", "", 0, false
		}
		version = v
	default:
		return "", "", 0, false
	}

	resource, ok := unescapeSegment(segments[0])
	if !ok {
		return "", "", 0, false
	}
	filename, ok := unescapeSegment(segments[len(segments)-1])
	if !ok {
		return "", "", 0, false
	}
	return interfaces.ResourceIdentifier(resource), filename, version, true
}

// versionMarker starts every version segment. escapeSegment never emits it,
// so a version segment cannot be mistaken for an id, a filename or a prefix.
const versionMarker = "@v"

func versionSegment(version uint64) string {
	return versionMarker + strconv.FormatUint(version, 10)
}

// parseVersionSegment accepts @v<n> with n >= 1 and no leading zeros.
func parseVersionSegment(s string) (uint64, bool) {
	digits, found := strings.CutPrefix(s, versionMarker)
	if !found || digits == "" || digits[0] == '0' {
		return 0, false
	}
	v, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func unescapeSegment(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	out, err := url.PathUnescape(s)
	if err != nil || !validSegment(out) {
		return "", false
	}
	// Only canonical encodings round-trip to the same key
	if escapeSegment(out) != s {
		return "", false
	}
	return out, true
}

// escapeSegment path-escapes s and also escapes a leading "@", which is
// reserved for version segments.
func escapeSegment(s string) string {
	out := url.PathEscape(s)
	if strings.HasPrefix(out, "@") {
		out = "%40" + out[1:]
	}
	return out
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".."
}
