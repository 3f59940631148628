package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"sc2builds/internal/logging"
)

const (
	DefaultQueueKey    = "build_order_jobs"
	retrySuffix        = ":retry"
	dlqSuffix          = ":dlq"
	retryCounterSuffix = ":retry-count:"
	maxRetryAttempts   = 3
	brPopBlock         = 5 * time.Second
)

// Handler processes one job payload.
type Handler func(ctx context.Context, payload []byte) error

// listClient is the subset of the Redis client the queue uses.
type listClient interface {
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisQueue implements queue operations using Redis lists.
type RedisQueue struct {
	client listClient
	key    string
}

// NewRedisQueue builds a Redis-backed queue helper for the named list.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return newRedisQueue(client, key)
}

func newRedisQueue(client listClient, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

// Key returns the main list name.
func (q *RedisQueue) Key() string {
	return q.key
}

// Enqueue pushes a job onto the main list. Consumers pop from the other end,
// so jobs are processed in submission order.
func (q *RedisQueue) Enqueue(ctx context.Context, payload []byte) error {
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue on %s: %w", q.key, err)
	}
	return nil
}

// Consume uses BRPOP to deliver jobs to the handler until the context is canceled.
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	logger := logging.Logger()

	for {
		payload, err := q.pop(ctx)
		if err != nil {
			logger.Warnf("redis consumer exiting: %v", err)
			return err
		}
		if payload == nil {
			continue
		}
		q.process(ctx, handler, payload, "")
	}
}

// ConsumeConcurrent uses BRPOP to feed jobs to a worker pool for concurrent processing.
func (q *RedisQueue) ConsumeConcurrent(ctx context.Context, workerCount, bufferSize int, handler Handler) error {
	logger := logging.Logger()

	jobChan := make(chan []byte, bufferSize)
	var wg sync.WaitGroup

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			tag := fmt.Sprintf("worker %d: ", workerID)
			for payload := range jobChan {
				q.process(ctx, handler, payload, tag)
			}
			logger.Infof("%sexiting", tag)
		}(i)
	}

	logger.Infof("started %d concurrent workers for queue %s", workerCount, q.key)

	shutdown := func(err error) error {
		close(jobChan)
		wg.Wait()
		return err
	}

	for {
		payload, err := q.pop(ctx)
		if err != nil {
			logger.Warnf("redis consumer exiting: %v", err)
			return shutdown(err)
		}
		if payload == nil {
			continue
		}

		select {
		case jobChan <- payload:
		case <-ctx.Done():
			return shutdown(ctx.Err())
		}
	}
}

// pop blocks for the next job, preferring the retry list. A nil payload with
// a nil error means the wait timed out or Redis hiccuped; only context
// cancellation is returned as an error.
func (q *RedisQueue) pop(ctx context.Context) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result, err := q.client.BRPop(ctx, brPopBlock, q.key+retrySuffix, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.Logger().Warnf("redis BRPOP error: %v", err)
		return nil, nil
	}
	if len(result) < 2 {
		return nil, nil
	}
	return []byte(result[1]), nil
}

func (q *RedisQueue) process(ctx context.Context, handler Handler, payload []byte, tag string) {
	logger := logging.Logger()
	if err := handler(ctx, payload); err != nil {
		logger.Warnf("%shandler error, scheduling retry: %v", tag, err)
		if err := q.handleRetry(ctx, payload); err != nil {
			logger.Errorf("%sretry handling failed: %v", tag, err)
		}
		return
	}
	_ = q.clearRetryCounter(ctx, payload)
}

func (q *RedisQueue) handleRetry(ctx context.Context, payload []byte) error {
	logger := logging.Logger()
	attempt, err := q.incrementRetryCounter(ctx, payload)
	if err != nil {
		return err
	}
	if attempt > maxRetryAttempts {
		logger.Warnf("moving job to DLQ after %d attempts", attempt-1)
		_ = q.client.LPush(ctx, q.key+dlqSuffix, payload).Err()
		_ = q.clearRetryCounter(ctx, payload)
		return nil
	}
	return q.client.LPush(ctx, q.key+retrySuffix, payload).Err()
}

func (q *RedisQueue) incrementRetryCounter(ctx context.Context, payload []byte) (int64, error) {
	key := retryCounterKey(q.key, payload)
	count, err := q.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = q.client.Expire(ctx, key, 24*time.Hour).Err()
	return count, nil
}

func (q *RedisQueue) clearRetryCounter(ctx context.Context, payload []byte) error {
	return q.client.Del(ctx, retryCounterKey(q.key, payload)).Err()
}

func retryCounterKey(queue string, payload []byte) string {
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s%s%s", queue, retryCounterSuffix, hex.EncodeToString(sum[:]))
}
