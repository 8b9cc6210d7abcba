package utils

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL = time.Minute
	cacheOpTimeout  = 2 * time.Second
)

// CacheGetJSON loads key into out. A nil client, a miss or a decode failure all report false.
func CacheGetJSON(ctx context.Context, rc *redis.Client, key string, out any) bool {
	if rc == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	b, err := rc.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil && Sugar != nil {
			Sugar.Debugf("cache get failed key=%s err=%v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		if Sugar != nil {
			Sugar.Warnf("cache decode failed key=%s err=%v", key, err)
		}
		return false
	}
	return true
}

// CacheSetJSON marshals v and stores it with ttl, or the default ttl when ttl <= 0.
func CacheSetJSON(ctx context.Context, rc *redis.Client, key string, v any, ttl time.Duration) {
	if rc == nil {
		return
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := rc.Set(ctx, key, b, ttl).Err(); err != nil && Sugar != nil {
		Sugar.Warnf("cache set failed key=%s err=%v", key, err)
	}
}

// CacheDelete removes keys.
func CacheDelete(ctx context.Context, rc *redis.Client, keys ...string) {
	if rc == nil || len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := rc.Del(ctx, keys...).Err(); err != nil && Sugar != nil {
		Sugar.Warnf("cache delete failed keys=%v err=%v", keys, err)
	}
}

// InvalidateByPrefix deletes keys that match the given prefix using SCAN.
func InvalidateByPrefix(ctx context.Context, rc *redis.Client, prefix string) {
	if rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var cursor uint64
	for i := 0; i < 10; i++ { // limit rounds to avoid long loops
		keys, cur, err := rc.Scan(ctx, cursor, prefix+"*", 1000).Result()
		if err != nil {
			break
		}
		cursor = cur
		if len(keys) > 0 {
			pipe := rc.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			_, _ = pipe.Exec(ctx)
		}
		if cursor == 0 {
			break
		}
	}
}
