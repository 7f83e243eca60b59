package artifacts

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps artifacts as Redis strings with a sorted-set index so
// List can return them newest first.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. A zero ttl keeps artifacts forever.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "paxth:artifact:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) indexKey() string { return s.prefix + "index" }

func (s *RedisStore) Save(ctx context.Context, name string, content []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.prefix+name, content, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(time.Now().UnixNano()), Member: name})
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	data, err := s.rdb.Get(ctx, s.prefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	names, err := s.rdb.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if s.ttl <= 0 {
		return names, nil
	}

	// Expired payloads leave stale index members behind; drop them lazily.
	live := make([]string, 0, len(names))
	for _, n := range names {
		exists, err := s.rdb.Exists(ctx, s.prefix+n).Result()
		if err != nil {
			return nil, err
		}
		if exists == 0 {
			s.rdb.ZRem(ctx, s.indexKey(), n)
			continue
		}
		live = append(live, n)
	}
	return live, nil
}
