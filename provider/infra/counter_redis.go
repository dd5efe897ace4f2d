package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"provider-gateway/provider/domain"

	"github.com/redis/go-redis/v9"
)

// incrWithExpiry soma ARGV[1] e define a expiração (ARGV[2], ms) só quando a
// chave ainda não tem uma. Tudo num único round-trip atômico.
var incrWithExpiry = redis.NewScript(`
local v = redis.call('INCRBY', KEYS[1], ARGV[1])
local ttl = redis.call('PTTL', KEYS[1])
local want = tonumber(ARGV[2])
if ttl < 0 and want > 0 then
  redis.call('PEXPIRE', KEYS[1], want)
  ttl = want
end
return {v, ttl}
`)

// RedisCounterStore implementa domain.CounterStore sobre go-redis.
// Todas as chaves recebem o prefixo configurado.
type RedisCounterStore struct {
	rdb    redis.UniversalClient
	prefix string
}

type RedisCounterOption func(*RedisCounterStore)

// WithKeyPrefix namespaceia as chaves (ex: "pgw"). Vazio desliga o prefixo.
func WithKeyPrefix(prefix string) RedisCounterOption {
	return func(s *RedisCounterStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisCounterStore(rdb redis.UniversalClient, opts ...RedisCounterOption) *RedisCounterStore {
	s := &RedisCounterStore{rdb: rdb, prefix: "pgw"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisCounterStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: redis %s %s: %w", domain.ErrStoreUnavailable, op, key, err)
}

func (s *RedisCounterStore) IncrWithExpiry(ctx context.Context, key string, by int64, ttl time.Duration) (int64, time.Duration, error) {
	res, err := incrWithExpiry.Run(ctx, s.rdb, []string{s.key(key)}, by, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, unavailable("incr", key, err)
	}
	if len(res) != 2 {
		return 0, 0, unavailable("incr", key, fmt.Errorf("unexpected script reply %v", res))
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}

func (s *RedisCounterStore) DecrBy(ctx context.Context, key string, by int64) (int64, error) {
	v, err := s.rdb.DecrBy(ctx, s.key(key), by).Result()
	if err != nil {
		return 0, unavailable("decrby", key, err)
	}
	return v, nil
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrKeyNotFound
		}
		return nil, unavailable("get", key, err)
	}
	return b, nil
}

func (s *RedisCounterStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *RedisCounterStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, unavailable("setnx", key, err)
	}
	return ok, nil
}

func (s *RedisCounterStore) ZAdd(ctx context.Context, key string, score float64, member []byte, ttl time.Duration) error {
	k := s.key(key)
	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: score, Member: member})
	if ttl > 0 {
		pipe.PExpire(ctx, k, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("zadd", key, err)
	}
	return nil
}

func (s *RedisCounterStore) ZRangeByScore(ctx context.Context, key string, min, max float64) ([][]byte, error) {
	vals, err := s.rdb.ZRangeByScore(ctx, s.key(key), &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
	if err != nil {
		return nil, unavailable("zrangebyscore", key, err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (s *RedisCounterStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error) {
	n, err := s.rdb.ZRemRangeByScore(ctx, s.key(key), formatScore(min), formatScore(max)).Result()
	if err != nil {
		return 0, unavailable("zremrangebyscore", key, err)
	}
	return n, nil
}

// Ping é usado no readiness do binário.
func (s *RedisCounterStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("ping", "", err)
	}
	return nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
