package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dmitrijs2005/moments/internal/storage"
)

// CacheKeyPrefix prefixes every cached entry, in the store and in Redis.
const CacheKeyPrefix = "metadata_cache_"

type cacheEntry struct {
	Info      Info      `json:"info"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StoreCache keeps entries in the app's key/value store next to the
// history blobs.
type StoreCache struct {
	store storage.Store
	now   func() time.Time
}

func NewStoreCache(store storage.Store) *StoreCache {
	return &StoreCache{store: store, now: time.Now}
}

func (c *StoreCache) Get(ctx context.Context, videoID string) (Info, bool, error) {
	raw, ok, err := c.store.Get(ctx, CacheKeyPrefix+videoID)
	if err != nil || !ok {
		return Info{}, false, err
	}

	var e cacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		// treat as a miss; the next Set overwrites it
		return Info{}, false, nil
	}
	if !c.now().Before(e.ExpiresAt) {
		return Info{}, false, nil
	}
	return e.Info, true, nil
}

func (c *StoreCache) Set(ctx context.Context, videoID string, info Info, ttl time.Duration) error {
	raw, err := json.Marshal(cacheEntry{Info: info, ExpiresAt: c.now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return c.store.Set(ctx, CacheKeyPrefix+videoID, raw)
}

// RedisCache shares entries across processes; expiry is left to Redis.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, videoID string) (Info, bool, error) {
	raw, err := c.rdb.Get(ctx, CacheKeyPrefix+videoID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Info{}, false, nil
	}
	if err != nil {
		return Info{}, false, fmt.Errorf("failed to read %s: %w", videoID, err)
	}

	var info Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return Info{}, false, nil
	}
	return info, true, nil
}

func (c *RedisCache) Set(ctx context.Context, videoID string, info Info, ttl time.Duration) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := c.rdb.Set(ctx, CacheKeyPrefix+videoID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", videoID, err)
	}
	return nil
}
