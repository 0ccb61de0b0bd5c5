package statestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Backend on Redis using optimistic WATCH/MULTI
// transactions. Every key read inside a transaction is watched; the buffered
// writes are applied in one MULTI/EXEC and the whole fn is retried if a
// watched key changed in between.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	maxRetries int
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	Prefix     string // key namespace, e.g. "seal:"
	MaxRetries int    // conflict retries, default 5
}

// NewRedisStore creates a new store backed by Redis.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreWithClient(rdb, cfg.Prefix, cfg.MaxRetries)
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, maxRetries int) *RedisStore {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &RedisStore{client: client, prefix: prefix, maxRetries: maxRetries}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Update(ctx context.Context, fn func(kv KV) error) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			kv := newOverlay(s.watchedRead(tx))
			if err := fn(kv); err != nil {
				return err
			}
			if len(kv.writes) == 0 {
				return nil
			}
			_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				for k, v := range kv.writes {
					if v == nil {
						p.Del(ctx, s.prefix+k)
						continue
					}
					p.Set(ctx, s.prefix+k, v, 0)
				}
				return nil
			})
			return err
		})
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w after %d attempts", ErrConflict, s.maxRetries)
}

func (s *RedisStore) View(ctx context.Context, fn func(kv KV) error) error {
	kv := newOverlay(s.plainRead)
	kv.readOnly = true
	return fn(kv)
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) watchedRead(tx *redis.Tx) func(ctx context.Context, key string) ([]byte, bool, error) {
	return func(ctx context.Context, key string) ([]byte, bool, error) {
		full := s.prefix + key
		if err := tx.Watch(ctx, full).Err(); err != nil {
			return nil, false, fmt.Errorf("redis watch %s: %w", key, err)
		}
		v, err := tx.Get(ctx, full).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("redis get %s: %w", key, err)
		}
		return v, true, nil
	}
}

func (s *RedisStore) plainRead(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}
