package settings

import (
	"context"
	"time"

	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
)

// redisKV is the slice of pkg/redis.Client the store uses.
type redisKV interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SettingsKey(name string) string
}

// RedisStore keeps settings under fs:settings:<key> without a TTL.
type RedisStore struct {
	client redisKV
}

func NewRedisStore(client redisKV) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, found, err := s.client.Lookup(ctx, s.client.SettingsKey(key))
	if err != nil {
		return "", false, pkgerrors.Storage(err, "read setting")
	}
	return value, found, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	err := s.client.Set(ctx, s.client.SettingsKey(key), value, 0)
	return pkgerrors.Storage(err, "write setting")
}
