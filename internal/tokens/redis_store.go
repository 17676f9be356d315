package tokens

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the registration in redis so it survives daemon restarts;
// a stale-epoch push arriving right after a restart is still detected.
type RedisStore struct {
	rdb       *redis.Client
	keyPrefix string
}

func NewRedisStore(rdb *redis.Client, keyPrefix string) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("tokens: redis client is nil")
	}
	if keyPrefix == "" {
		keyPrefix = "voicelink"
	}
	return &RedisStore{rdb: rdb, keyPrefix: keyPrefix}, nil
}

func (s *RedisStore) tokenKey() string { return s.keyPrefix + ":device_token" }
func (s *RedisStore) epochKey() string { return s.keyPrefix + ":device_token_epoch" }

func (s *RedisStore) Save(ctx context.Context, token []byte) (int64, error) {
	epoch, err := s.rdb.Incr(ctx, s.epochKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("tokens: bump epoch: %w", err)
	}
	if err := s.rdb.Set(ctx, s.tokenKey(), token, 0).Err(); err != nil {
		return 0, fmt.Errorf("tokens: store token: %w", err)
	}
	return epoch, nil
}

func (s *RedisStore) Current(ctx context.Context) ([]byte, int64, error) {
	epoch, err := s.rdb.Get(ctx, s.epochKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("tokens: read epoch: %w", err)
	}

	token, err := s.rdb.Get(ctx, s.tokenKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, epoch, ErrNoToken
	}
	if err != nil {
		return nil, epoch, fmt.Errorf("tokens: read token: %w", err)
	}
	return token, epoch, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.tokenKey()).Err(); err != nil {
		return fmt.Errorf("tokens: clear token: %w", err)
	}
	return nil
}
