package ledger

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "dispatch:kv:"
	scanBatch      = 200
)

// RedisStore keeps records as plain string values under a namespaced key.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore builds a store backed by Redis.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get fetches a record.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(key)
		}
		return nil, unavailable("get", key, err)
	}
	return value, nil
}

// Set writes a record without expiry.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

// Scan walks the keyspace with SCAN MATCH and fetches values with MGET.
func (s *RedisStore) Scan(ctx context.Context, prefix string) ([]Record, error) {
	pattern := redisKeyPrefix + escapeGlob(prefix) + "*"
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("scan", prefix, err)
	}
	sort.Strings(keys)

	out := make([]Record, 0, len(keys))
	for start := 0; start < len(keys); start += scanBatch {
		end := start + scanBatch
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]
		values, err := s.client.MGet(ctx, batch...).Result()
		if err != nil {
			return nil, unavailable("mget", prefix, err)
		}
		for i, v := range values {
			str, ok := v.(string)
			if !ok {
				// deleted between SCAN and MGET
				continue
			}
			out = append(out, Record{Key: strings.TrimPrefix(batch[i], redisKeyPrefix), Value: []byte(str)})
		}
	}
	return out, nil
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
