package keystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/clearview/core"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces session key slots
const DefaultRedisPrefix = "clearview:session_key:"

// RedisStore persists session keys in Redis
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis store. A zero ttl keeps keys until they are
// overwritten.
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: DefaultRedisPrefix,
		ttl:    ttl,
	}
}

// LoadSessionKey returns the key stored for wallet
func (s *RedisStore) LoadSessionKey(ctx context.Context, wallet common.Address) (string, error) {
	value, err := s.client.Get(ctx, s.prefix+slot(wallet)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", core.ErrSessionKeyNotFound
		}
		return "", fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return value, nil
}

// SaveSessionKey stores key in wallet's slot
func (s *RedisStore) SaveSessionKey(ctx context.Context, wallet common.Address, key string) error {
	if err := s.client.Set(ctx, s.prefix+slot(wallet), key, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}
