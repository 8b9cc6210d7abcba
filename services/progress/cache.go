package progress

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cppla/challengehub/utils"
)

const (
	leaderboardKeyPrefix = "cache:leaderboard:"
	generationKeyPrefix  = leaderboardKeyPrefix + "gen:"
)

// RedisCache keeps ranked leaderboards in Redis. Boards are keyed by generation, so a board
// written after an Invalidate lands under a stale key that no reader asks for and expires by TTL.
type RedisCache struct {
	rc  *redis.Client
	ttl time.Duration
}

func NewRedisCache(rc *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rc: rc, ttl: ttl}
}

func generationKey(challengeID uint) string {
	return generationKeyPrefix + strconv.FormatUint(uint64(challengeID), 10)
}

func leaderboardKey(challengeID uint, gen int64) string {
	return leaderboardKeyPrefix + strconv.FormatUint(uint64(challengeID), 10) + ":" + strconv.FormatInt(gen, 10)
}

// generation reads the current generation; ok is false when Redis is unusable.
func (c *RedisCache) generation(ctx context.Context, challengeID uint) (int64, bool) {
	if c.rc == nil {
		return 0, false
	}
	gen, err := c.rc.Get(ctx, generationKey(challengeID)).Int64()
	if err == redis.Nil {
		return 0, true
	}
	if err != nil {
		zap.L().Debug("leaderboard generation read failed", zap.Uint("challenge_id", challengeID), zap.Error(err))
		return 0, false
	}
	return gen, true
}

func (c *RedisCache) Get(ctx context.Context, challengeID uint) ([]Entry, int64, bool) {
	gen, ok := c.generation(ctx, challengeID)
	if !ok {
		return nil, -1, false
	}
	var entries []Entry
	if !utils.CacheGetJSON(ctx, c.rc, leaderboardKey(challengeID, gen), &entries) {
		return nil, gen, false
	}
	return entries, gen, true
}

func (c *RedisCache) Set(ctx context.Context, challengeID uint, gen int64, entries []Entry) {
	if gen < 0 {
		return
	}
	utils.CacheSetJSON(ctx, c.rc, leaderboardKey(challengeID, gen), entries, c.ttl)
}

func (c *RedisCache) Invalidate(ctx context.Context, challengeID uint) {
	if c.rc == nil {
		return
	}
	gen, err := c.rc.Incr(ctx, generationKey(challengeID)).Result()
	if err != nil {
		zap.L().Warn("leaderboard invalidate failed", zap.Uint("challenge_id", challengeID), zap.Error(err))
		return
	}
	utils.CacheDelete(ctx, c.rc, leaderboardKey(challengeID, gen-1))
}

// Flush drops every cached leaderboard and generation counter.
func (c *RedisCache) Flush(ctx context.Context) {
	utils.InvalidateByPrefix(ctx, c.rc, leaderboardKeyPrefix)
}
