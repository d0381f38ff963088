package cooldown

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "cooldown:"

// RedisStore shares cooldowns between controller replicas. Each entry is a hash whose TTL
// equals the remaining window, so expired keys disappear on their own.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	vals, err := r.client.HGetAll(ctx, r.prefix+key).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("cooldown get %s: %w", key, err)
	}
	if len(vals) == 0 {
		return Entry{}, false, nil
	}
	e, err := decodeEntry(key, vals)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (r *RedisStore) Record(ctx context.Context, key string, at time.Time, d time.Duration) (Entry, error) {
	return r.put(ctx, key, at, d, false)
}

func (r *RedisStore) Extend(ctx context.Context, key string, at time.Time, d time.Duration) (Entry, error) {
	return r.put(ctx, key, at, d, true)
}

func (r *RedisStore) put(ctx context.Context, key string, at time.Time, d time.Duration, extended bool) (Entry, error) {
	prev, had, err := r.Get(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	e := merge(prev, had, key, at, d, extended)
	ttl := time.Until(e.ExpiresAt())
	if ttl < time.Second {
		ttl = time.Second
	}
	rk := r.prefix + key
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, rk,
			"last", e.LastInvokedAt.UnixMilli(),
			"dur", e.DurationMs,
			"ext", strconv.FormatBool(e.Extended),
		)
		p.PExpire(ctx, rk, ttl)
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("cooldown put %s: %w", key, err)
	}
	return e, nil
}

func (r *RedisStore) Snapshot(ctx context.Context) ([]Entry, error) {
	var out []Entry
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), r.prefix)
		e, ok, err := r.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cooldown scan: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *RedisStore) Reset(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("cooldown reset: %w", err)
		}
	}
	return iter.Err()
}

func decodeEntry(key string, vals map[string]string) (Entry, error) {
	last, err1 := strconv.ParseInt(vals["last"], 10, 64)
	dur, err2 := strconv.ParseInt(vals["dur"], 10, 64)
	if err := errors.Join(err1, err2); err != nil {
		return Entry{}, fmt.Errorf("cooldown decode %s: %w", key, err)
	}
	ext, _ := strconv.ParseBool(vals["ext"])
	return Entry{
		Key:           key,
		LastInvokedAt: time.UnixMilli(last),
		DurationMs:    dur,
		Extended:      ext,
	}, nil
}
