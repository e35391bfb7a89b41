package versionindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/ruteri/storage-adapter/interfaces"
)

// RedisIndex stores version sets in Redis. Each stable key owns a counter
// advanced with INCR and a hash of JSON references keyed by version index.
// Commit runs as a Lua script so the counter never falls behind the hash.
type RedisIndex struct {
	rdb       *redis.Client
	namespace string
}

// RedisConfig holds connection settings for a Redis index.
type RedisConfig struct {
	Addr      string
	DB        int
	Password  string
	Namespace string
}

// NewRedisIndex connects to Redis and verifies the connection.
func NewRedisIndex(ctx context.Context, cfg RedisConfig) (*RedisIndex, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	return newRedisIndex(ctx, rdb, cfg.Namespace)
}

// NewRedisIndexFromURL connects using a redis:// URL.
func NewRedisIndexFromURL(ctx context.Context, rawURL, namespace string) (*RedisIndex, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return newRedisIndex(ctx, redis.NewClient(opts), namespace)
}

func newRedisIndex(ctx context.Context, rdb *redis.Client, namespace string) (*RedisIndex, error) {
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: redis ping failed: %v", interfaces.ErrBackendUnavailable, err)
	}
	if namespace == "" {
		namespace = "storage-adapter"
	}
	return &RedisIndex{rdb: rdb, namespace: namespace}, nil
}

func (idx *RedisIndex) counterKey(stable interfaces.BackendKey) string {
	return idx.namespace + ":seq:" + string(stable)
}

func (idx *RedisIndex) versionsKey(stable interfaces.BackendKey) string {
	return idx.namespace + ":versions:" + string(stable)
}

// Reserve advances the counter of stable with INCR.
func (idx *RedisIndex) Reserve(ctx context.Context, stable interfaces.BackendKey) (uint64, error) {
	n, err := idx.rdb.Incr(ctx, idx.counterKey(stable)).Result()
	if err != nil {
		return 0, fmt.Errorf("INCR %s: %w", idx.counterKey(stable), err)
	}
	return uint64(n), nil
}

// commitScript stores a reference and raises the counter to at least its
// version in one atomic step.
// KEYS[1] counter, KEYS[2] versions hash, ARGV[1] version, ARGV[2] reference.
var commitScript = redis.NewScript(`
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) > current then
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// Commit stores ref in the hash of stable and raises the counter so a later
// Reserve never returns ref.Version again.
func (idx *RedisIndex) Commit(ctx context.Context, stable interfaces.BackendKey, ref interfaces.StoredFileReference) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("failed to encode reference: %w", err)
	}
	field := strconv.FormatUint(ref.Version, 10)
	keys := []string{idx.counterKey(stable), idx.versionsKey(stable)}
	if err := commitScript.Run(ctx, idx.rdb, keys, field, data).Err(); err != nil {
		return fmt.Errorf("commit %s: %w", idx.versionsKey(stable), err)
	}
	return nil
}

// List returns the committed versions of stable, oldest first.
func (idx *RedisIndex) List(ctx context.Context, stable interfaces.BackendKey) ([]interfaces.StoredFileReference, error) {
	fields, err := idx.rdb.HGetAll(ctx, idx.versionsKey(stable)).Result()
	if err != nil {
		return nil, fmt.Errorf("HGETALL %s: %w", idx.versionsKey(stable), err)
	}
	if len(fields) == 0 {
		return nil, interfaces.ErrContentNotFound
	}

	refs := make([]interfaces.StoredFileReference, 0, len(fields))
	for field, raw := range fields {
		var ref interfaces.StoredFileReference
		if err := json.Unmarshal([]byte(raw), &ref); err != nil {
			return nil, fmt.Errorf("corrupt version %s of %s: %w", field, stable, err)
		}
		refs = append(refs, ref)
	}
	sortByVersion(refs)
	return refs, nil
}

// Remove deletes the counter and hash of stable.
func (idx *RedisIndex) Remove(ctx context.Context, stable interfaces.BackendKey) error {
	if err := idx.rdb.Del(ctx, idx.counterKey(stable), idx.versionsKey(stable)).Err(); err != nil {
		return fmt.Errorf("DEL %s: %w", stable, err)
	}
	return nil
}

// Close closes the Redis client.
func (idx *RedisIndex) Close() error {
	return idx.rdb.Close()
}
