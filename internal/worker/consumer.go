// Package worker drains the Redis persistence queues in batches.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis

	shutdownTimeout = 5 * time.Second
	requeuePause    = 2 * time.Second
	redisErrorPause = 3 * time.Second
)

// consumer pops JSON items of type T from a Redis list and hands them to
// flush in batches. Whatever flush returns is pushed back to the queue.
type consumer[T any] struct {
	rdb   *redis.Client
	queue string
	flush func(ctx context.Context, batch []T) (failed []T)
	log   zerolog.Logger
}

func (c *consumer[T]) run(ctx context.Context) {
	buffer := make([]T, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			c.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			c.shutdown(buffer)
			return
		default:
		}

		// BLPop returns immediately when data exists.
		result, err := c.rdb.BLPop(ctx, PollTimeout, c.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				c.shutdown(buffer)
				return
			}
			c.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleep(ctx, redisErrorPause)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var item T
		if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
			// Malformed items can never succeed.
			c.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		buffer = append(buffer, item)
	}
}

func (c *consumer[T]) flushSafe(ctx context.Context, batch []T) {
	if failed := c.flush(ctx, batch); len(failed) > 0 {
		c.requeue(ctx, failed)
	}
}

func (c *consumer[T]) requeue(ctx context.Context, items []T) {
	pipe := c.rdb.Pipeline()
	for _, item := range items {
		data, _ := json.Marshal(item)
		pipe.RPush(ctx, c.queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	c.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	sleep(ctx, requeuePause)
}

func (c *consumer[T]) shutdown(buffer []T) {
	if len(buffer) == 0 {
		return
	}
	c.log.Info().Int("count", len(buffer)).Msg("Worker stopping, flushing remaining buffer...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	c.flushSafe(ctx, buffer)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
