package adapter

import (
	"testing"

	"github.com/ruteri/storage-adapter/interfaces"
	"github.com/stretchr/testify/assert"
)

func TestIDPathGenerator_Generate(t *testing.T) {
	tests := []struct {
		name      string
		generator interfaces.IDPathGenerator
		resource  interfaces.ResourceIdentifier
		filename  string
		prefix    string
		version   uint64
		expected  interfaces.BackendKey
	}{
		{name: "basic original", generator: BasicIDPathGenerator{}, resource: "r1", filename: "abc", expected: "r1/abc"},
		{name: "basic version", generator: BasicIDPathGenerator{}, resource: "r1", filename: "abc", version: 3, expected: "r1/@v3/abc"},
		{name: "basic ignores prefix", generator: BasicIDPathGenerator{}, resource: "r1", filename: "abc", prefix: "x", expected: "r1/abc"},
		{name: "prefixed original", generator: PrefixedIDPathGenerator{}, resource: "r1", filename: "abc", prefix: "s3", expected: "s3/r1/abc"},
		{name: "prefixed version", generator: PrefixedIDPathGenerator{}, resource: "r1", filename: "abc", prefix: "s3", version: 12, expected: "s3/r1/@v12/abc"},
		{name: "escapes slashes", generator: BasicIDPathGenerator{}, resource: "a/b", filename: "c d.txt", expected: "a%2Fb/c%20d.txt"},
		{name: "escapes leading at sign", generator: BasicIDPathGenerator{}, resource: "@v1", filename: "@x", version: 1, expected: "%40v1/@v1/%40x"},
		{name: "keeps inner at sign", generator: PrefixedIDPathGenerator{}, resource: "a@b", filename: "c", prefix: "@p", expected: "%40p/a@b/c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := tt.generator.Generate(tt.resource, tt.filename, tt.prefix, tt.version)
			second := tt.generator.Generate(tt.resource, tt.filename, tt.prefix, tt.version)
			assert.Equal(t, tt.expected, first)
			assert.Equal(t, first, second)

			resource, filename, version, ok := tt.generator.Parse(first, tt.prefix)
			assert.True(t, ok)
			assert.Equal(t, tt.resource, resource)
			assert.Equal(t, tt.filename, filename)
			assert.Equal(t, tt.version, version)
		})
	}
}

func TestIDPathGenerator_NoCollisions(t *testing.T) {
	g := PrefixedIDPathGenerator{}
	keys := map[interfaces.BackendKey]bool{}
	for _, c := range []struct {
		prefix   string
		resource interfaces.ResourceIdentifier
		filename string
	}{
		{"x", "a/b", "c"},
		{"x", "a", "b/c"},
		{"x/a", "b", "c"},
		{"y", "a", "c"},
		{"x", "a", "c"},
	} {
		key := g.Generate(c.resource, c.filename, c.prefix, 0)
		assert.False(t, keys[key], "collision on %s", key)
		keys[key] = true
	}
}

func TestIDPathGenerator_BasicAndPrefixedDisjoint(t *testing.T) {
	type owner struct {
		prefix   string
		resource interfaces.ResourceIdentifier
		filename string
		version  uint64
	}
	basic := []owner{
		{"", "x", "foo", 0},
		{"", "foo", "bar", 0},
		{"", "x", "foo", 1},
		{"", "x", "v1", 2},
		{"", "@v1", "foo", 0},
	}
	prefixed := []owner{
		{"x", "v1", "foo", 0},
		{"x", "@v1", "foo", 0},
		{"x", "foo", "bar", 0},
		{"x", "foo", "v1", 1},
		{"foo", "x", "bar", 1},
	}

	keys := map[interfaces.BackendKey]string{}
	record := func(kind string, key interfaces.BackendKey) {
		other, taken := keys[key]
		assert.False(t, taken, "%s key %s already generated by %s", kind, key, other)
		keys[key] = kind
	}
	for _, o := range basic {
		key := BasicIDPathGenerator{}.Generate(o.resource, o.filename, "", o.version)
		record("basic", key)
		for _, p := range prefixed {
			assert.False(t, PrefixedIDPathGenerator{}.Matches(key, p.prefix), "prefix %q claims basic key %s", p.prefix, key)
		}
	}
	for _, o := range prefixed {
		key := PrefixedIDPathGenerator{}.Generate(o.resource, o.filename, o.prefix, o.version)
		record("prefixed", key)
		assert.False(t, BasicIDPathGenerator{}.Matches(key, ""), "basic claims prefixed key %s", key)
	}
}

func TestIDPathGenerator_Matches(t *testing.T) {
	tests := []struct {
		name      string
		generator interfaces.IDPathGenerator
		key       interfaces.BackendKey
		prefix    string
		expected  bool
	}{
		{name: "basic original", generator: BasicIDPathGenerator{}, key: "r1/abc", expected: true},
		{name: "basic version", generator: BasicIDPathGenerator{}, key: "r1/@v2/abc", expected: true},
		{name: "basic escaped at sign id", generator: BasicIDPathGenerator{}, key: "%40v2/abc", expected: true},
		{name: "basic rejects unmarked version", generator: BasicIDPathGenerator{}, key: "r1/v2/abc", expected: false},
		{name: "basic rejects raw at sign id", generator: BasicIDPathGenerator{}, key: "@v2/abc", expected: false},
		{name: "basic rejects prefixed key", generator: BasicIDPathGenerator{}, key: "x/r1/abc", expected: false},
		{name: "basic rejects prefixed version key", generator: BasicIDPathGenerator{}, key: "x/r1/@v2/abc", expected: false},
		{name: "basic rejects single segment", generator: BasicIDPathGenerator{}, key: "abc", expected: false},
		{name: "basic rejects zero padded version", generator: BasicIDPathGenerator{}, key: "r1/@v01/abc", expected: false},
		{name: "basic rejects v0 segment", generator: BasicIDPathGenerator{}, key: "r1/@v0/abc", expected: false},
		{name: "basic rejects dot segments", generator: BasicIDPathGenerator{}, key: "r1/..", expected: false},
		{name: "basic rejects empty segments", generator: BasicIDPathGenerator{}, key: "r1//abc", expected: false},
		{name: "basic rejects non canonical escape", generator: BasicIDPathGenerator{}, key: "r%31/abc", expected: false},
		{name: "prefixed own key", generator: PrefixedIDPathGenerator{}, key: "x/r1/abc", prefix: "x", expected: true},
		{name: "prefixed own version", generator: PrefixedIDPathGenerator{}, key: "x/r1/@v4/abc", prefix: "x", expected: true},
		{name: "prefixed rejects basic version key", generator: PrefixedIDPathGenerator{}, key: "x/@v1/foo", prefix: "x", expected: false},
		{name: "prefixed other prefix", generator: PrefixedIDPathGenerator{}, key: "y/r1/abc", prefix: "x", expected: false},
		{name: "prefixed unprefixed key", generator: PrefixedIDPathGenerator{}, key: "r1/abc", prefix: "x", expected: false},
		{name: "prefixed without prefix", generator: PrefixedIDPathGenerator{}, key: "x/r1/abc", prefix: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.generator.Matches(tt.key, tt.prefix))
		})
	}
}
