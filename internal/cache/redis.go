package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisProvider backs the cache and single-flight lock with a shared Redis
// instance, for multi-instance gateway deployments (config.cache_provider =
// "redis").
type RedisProvider struct {
	client *redis.Client
}

// NewRedisProvider constructs a RedisProvider from an already-configured
// client (tests substitute a miniredis-backed client).
func NewRedisProvider(client *redis.Client) *RedisProvider {
	return &RedisProvider{client: client}
}

type wireEntry struct {
	StatusCode int                 `json:"statusCode"`
	Header     map[string][]string `json:"header"`
	Body       []byte              `json:"body"`
	StoredAt   time.Time           `json:"storedAt"`
	TTL        time.Duration       `json:"ttl"`
}

func (r *RedisProvider) Get(ctx context.Context, key string) (*Entry, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var w wireEntry
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &Entry{StatusCode: w.StatusCode, Header: w.Header, Body: w.Body, StoredAt: w.StoredAt, TTL: w.TTL}, true, nil
}

func (r *RedisProvider) Set(ctx context.Context, key string, e *Entry) error {
	w := wireEntry{StatusCode: e.StatusCode, Header: e.Header, Body: e.Body, StoredAt: e.StoredAt, TTL: e.TTL}
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	return r.client.Set(ctx, key, raw, e.TTL).Err()
}

func (r *RedisProvider) TryAcquire(ctx context.Context, key, token string, lease time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, token, lease).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock acquire %s: %w", key, err)
	}
	return ok, nil
}

// releaseScript deletes key only if its current value is the caller's token,
// preventing a caller from releasing a lock it no longer owns (e.g. after
// its lease already expired and another caller acquired it).
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

func (r *RedisProvider) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis lock release %s: %w", key, err)
	}
	return nil
}

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

func (r *RedisProvider) Extend(ctx context.Context, key, token string, lease time.Duration) error {
	if err := extendScript.Run(ctx, r.client, []string{key}, token, lease.Milliseconds()).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis lock extend %s: %w", key, err)
	}
	return nil
}
