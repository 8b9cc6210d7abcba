package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/cppla/challengehub/config"
)

var (
	redisClient *redis.Client
	redisOnce   sync.Once
)

func redisAddr(cfg config.AppConfig) string {
	return net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort))
}

// GetRedis returns a singleton Redis client based on loaded config.
func GetRedis() *redis.Client {
	redisOnce.Do(func() {
		cfg := config.Get()
		redisClient = redis.NewClient(&redis.Options{
			Addr:         redisAddr(cfg),
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		})
		// Optional: ping to validate; ignore error to allow fallback paths
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil && Sugar != nil {
			Sugar.Warnf("redis ping failed, cache disabled until reachable: %v", err)
		}
	})
	return redisClient
}

// AsynqRedisOpt points the task queue at the same Redis instance.
func AsynqRedisOpt() asynq.RedisClientOpt {
	cfg := config.Get()
	return asynq.RedisClientOpt{
		Addr:     redisAddr(cfg),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}
