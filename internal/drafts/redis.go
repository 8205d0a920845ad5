// Package drafts provides the draft stores behind the event editor.
package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chronos/internal/editor"
)

// RedisConfig holds connection settings for the redis draft store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL expires drafts nobody came back to. Zero keeps them forever.
	TTL time.Duration

	DialTimeout   time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		Prefix:        "chronos:",
		TTL:           7 * 24 * time.Hour,
		DialTimeout:   5 * time.Second,
		MaxRetries:    3,
		RetryInterval: time.Second,
	}
}

// Redis stores drafts as JSON strings under Prefix+key.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects and pings, retrying MaxRetries times.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				client.Close()
				return nil, ctx.Err()
			case <-time.After(cfg.RetryInterval):
			}
		}
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return &Redis{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}, nil
		}
	}
	client.Close()
	return nil, fmt.Errorf("connect to redis after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) GetDraft(ctx context.Context, key string) (editor.Draft, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return editor.Draft{}, editor.ErrDraftNotFound
	}
	if err != nil {
		return editor.Draft{}, err
	}
	var d editor.Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return editor.Draft{}, fmt.Errorf("decode draft %s: %w", key, err)
	}
	return d, nil
}

func (r *Redis) PutDraft(ctx context.Context, key string, d editor.Draft) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(key), raw, r.ttl).Err()
}

func (r *Redis) DeleteDraft(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// PurgeDrafts is a no-op: redis expires drafts through their TTL.
func (r *Redis) PurgeDrafts(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
