package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisKeyPrefix = "packtrack:cache:"

// RedisStore keeps the per-URL entry lists in Redis, one list per
// tracking URL. Writes go straight through, so the store is never
// modified in the file store sense and Save has nothing to do.
type RedisStore struct {
	client     *redis.Client
	maxEntries int
	logger     zerolog.Logger
}

// NewRedisStore constructs a Redis backed store. A maxEntries of zero
// or less leaves the per-URL history unbounded.
func NewRedisStore(client *redis.Client, maxEntries int, logger zerolog.Logger) *RedisStore {
	return &RedisStore{client: client, maxEntries: maxEntries, logger: logger}
}

func redisKey(url string) string { return redisKeyPrefix + url }

// GetFresh reads the whole entry list for url and picks the newest one
// within maxAge. Redis failures and undecodable elements degrade to a
// miss instead of failing the lookup.
func (s *RedisStore) GetFresh(ctx context.Context, url string, maxAge time.Duration) (Entry, bool) {
	if s == nil || s.client == nil {
		return Entry{}, false
	}
	items, err := s.client.LRange(ctx, redisKey(url), 0, -1).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("url", url).Msg("cache_redis_read_failed")
		return Entry{}, false
	}
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			s.logger.Warn().Err(err).Str("url", url).Msg("cache_redis_entry_undecodable")
			continue
		}
		entries = append(entries, e)
	}
	return freshest(entries, maxAge)
}

// Insert appends the entry to the URL's list and trims it to the
// configured bound in the same round trip.
func (s *RedisStore) Insert(ctx context.Context, url, text string) {
	if s == nil || s.client == nil {
		return
	}
	data, err := json.Marshal(Entry{Text: text, Created: time.Now()})
	if err != nil {
		s.logger.Warn().Err(err).Str("url", url).Msg("cache_redis_encode_failed")
		return
	}
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, redisKey(url), data)
		if s.maxEntries > 0 {
			p.LTrim(ctx, redisKey(url), int64(-s.maxEntries), -1)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("url", url).Msg("cache_redis_write_failed")
	}
}

func (s *RedisStore) Save(context.Context) error { return nil }

func (s *RedisStore) Modified() bool { return false }

// Ping reports whether the Redis backend is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("redis cache: client not configured")
	}
	return s.client.Ping(ctx).Err()
}
