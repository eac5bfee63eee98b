package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/config"
)

// RedisCache is the local cache adapter. Each key lives in its own string
// value so a cold read fetches everything with one MGET.
type RedisCache struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisCache creates a RedisCache on an existing client.
func NewRedisCache(rdb *redis.Client, log zerolog.Logger) *RedisCache {
	return &RedisCache{
		rdb: rdb,
		log: log.With().Str("component", "redis_cache").Logger(),
	}
}

func (c *RedisCache) Load(ctx context.Context) (Snapshot, error) {
	redisKeys := make([]string, len(Keys))
	for i, k := range Keys {
		redisKeys[i] = config.CacheKey.LocalDataKey(string(k))
	}

	vals, err := c.rdb.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load local cache: %w", err)
	}

	snap := make(Snapshot, len(Keys))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		snap[Keys[i]] = json.RawMessage(s)
	}
	return snap, nil
}

func (c *RedisCache) Save(ctx context.Context, key Key, value any) (Ack, error) {
	raw, err := encode(key, value)
	if err != nil {
		return Ack{}, err
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.LocalDataKey(string(key)), []byte(raw), 0)
	pipe.Publish(ctx, config.CacheKey.LocalDataChannel(), string(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return Ack{}, fmt.Errorf("save %s to local cache: %w", key, err)
	}
	return Ack{Key: key, Mode: ModeLocal}, nil
}

// Subscribe forwards writes announced by any instance sharing this Redis.
func (c *RedisCache) Subscribe(ctx context.Context, onChange func(Snapshot)) (Unsubscribe, error) {
	pubsub := c.rdb.Subscribe(ctx, config.CacheKey.LocalDataChannel())
	// Wait for the subscription confirmation so no write is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe local cache: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				key := Key(msg.Payload)
				if !key.Valid() {
					continue
				}
				raw, err := c.rdb.Get(subCtx, config.CacheKey.LocalDataKey(string(key))).Bytes()
				if err != nil {
					if !errors.Is(err, redis.Nil) && subCtx.Err() == nil {
						c.log.Warn().Err(err).Str("key", string(key)).Msg("Failed to read changed key")
					}
					continue
				}
				onChange(Snapshot{key: raw})
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}
