package database

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/config"
)

// blockingClients counts connections held for long periods: the two queue
// workers sit in BLPOP and the cache change feed keeps a pub/sub connection.
const blockingClients = 3

// NewRedisClient creates and validates the Redis client backing the local
// cache, work queues and live monitor channels.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if opt.ClientName == "" {
		opt.ClientName = "smada-genius"
	}
	// Monitor SSE streams each hold a pub/sub connection too, so leave room
	// above the default for request traffic.
	if opt.PoolSize == 0 {
		opt.PoolSize = 10*runtime.GOMAXPROCS(0) + blockingClients
	}

	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opt.Addr, err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Int("pool_size", opt.PoolSize).
		Msg("Redis connected")

	return rdb, nil
}
