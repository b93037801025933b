package props

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Redis backs the property store with a Redis instance, namespaced under a
// key prefix so several deployments can share one database.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis wraps an existing client. prefix is prepended to every key,
// separated by a colon.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "threadpurge"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

func (s *Redis) key(k string) string { return s.prefix + ":" + k }

func (s *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Redis) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Redis) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (s *Redis) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.key("*"), 0).Iterator()
	strip := len(s.prefix) + 1
	for iter.Next(ctx) {
		k := iter.Val()
		if len(k) > strip {
			keys = append(keys, k[strip:])
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

var _ Store = (*Redis)(nil)
