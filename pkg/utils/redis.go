package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig controls redis client behavior.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration

	PingTimeout time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 10
	}
	if out.MinIdleConns < 0 {
		out.MinIdleConns = 0
	}
	if out.PoolTimeout <= 0 {
		out.PoolTimeout = 4 * time.Second
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		PoolTimeout:  cfg.PoolTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

const (
	MarkerProcessing = "processing"
	MarkerDone       = "done"
)

var claimScript = redis.NewScript(`
-- KEYS[1] = marker key
-- ARGV[1] = processing ttl_ms
--
-- Returns:
--  1 if claimed
--  0 if another holder is processing or the key is done
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('SET', KEYS[1], 'processing', 'PX', ARGV[1])
return 1
`)

var completeScript = redis.NewScript(`
-- KEYS[1] = marker key
-- ARGV[1] = done ttl_ms
redis.call('SET', KEYS[1], 'done', 'PX', ARGV[1])
return 1
`)

var releaseScript = redis.NewScript(`
-- KEYS[1] = marker key
-- Only a processing claim is released; done markers are kept.
if redis.call('GET', KEYS[1]) == 'processing' then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)

// ClaimOnce atomically takes a processing claim on key. It reports false when
// the key is already claimed or completed. The claim expires after ttl so a
// crashed holder does not block the key forever.
func ClaimOnce(ctx context.Context, rdb redis.Scripter, key string, ttl time.Duration) (bool, error) {
	if err := checkKey(rdb, key, ttl); err != nil {
		return false, err
	}
	res, err := claimScript.Run(ctx, rdb, []string{key}, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// MarkDone converts a claim into a done marker retained for ttl.
func MarkDone(ctx context.Context, rdb redis.Scripter, key string, ttl time.Duration) error {
	if err := checkKey(rdb, key, ttl); err != nil {
		return err
	}
	return completeScript.Run(ctx, rdb, []string{key}, ttl.Milliseconds()).Err()
}

// ReleaseClaim drops a processing claim so the key can be claimed again.
func ReleaseClaim(ctx context.Context, rdb redis.Scripter, key string) error {
	if err := checkKey(rdb, key, time.Second); err != nil {
		return err
	}
	return releaseScript.Run(ctx, rdb, []string{key}).Err()
}

// ClaimState returns MarkerProcessing, MarkerDone or "" for key.
func ClaimState(ctx context.Context, rdb redis.Cmdable, key string) (string, error) {
	v, err := rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func checkKey(rdb redis.Scripter, key string, ttl time.Duration) error {
	if rdb == nil {
		return fmt.Errorf("redis client is nil")
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be > 0")
	}
	return nil
}
