package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisClient is the subset of *redis.Client the queue uses.
type redisClient interface {
	BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd
	LMove(ctx context.Context, source, destination, srcpos, destpos string) *redis.StringCmd
	LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// RedisQueue is a reliable list queue. Publishers LPUSH onto queue; Receive
// atomically moves the oldest entry onto the processing list, and the ack
// handle removes it from there. Entries stranded in the processing list by a
// crash are put back with Requeue.
type RedisQueue struct {
	client       redisClient
	queue        string
	processing   string
	blockTimeout time.Duration
	logger       *slog.Logger
}

func NewRedisQueue(client redisClient, queue, processing string, blockTimeout time.Duration, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if processing == "" {
		processing = queue + ":processing"
	}
	if blockTimeout <= 0 {
		blockTimeout = 5 * time.Second
	}
	return &RedisQueue{
		client:       client,
		queue:        queue,
		processing:   processing,
		blockTimeout: blockTimeout,
		logger:       logger,
	}
}

func (q *RedisQueue) Publish(ctx context.Context, payload []byte) error {
	if err := q.client.LPush(ctx, q.queue, payload).Err(); err != nil {
		return fmt.Errorf("redis lpush %s: %w", q.queue, err)
	}
	return nil
}

// Receive blocks in BLMOVE, re-issuing it each time the block timeout passes
// without a message.
func (q *RedisQueue) Receive(ctx context.Context) (Message, error) {
	for {
		payload, err := q.client.BLMove(ctx, q.queue, q.processing, "RIGHT", "LEFT", q.blockTimeout).Result()
		switch {
		case err == nil:
			return Message{
				ID:      uuid.NewString(),
				Payload: []byte(payload),
				Ack:     &redisAck{q: q, payload: payload},
			}, nil
		case errors.Is(err, redis.Nil):
			if ctx.Err() != nil {
				return Message{}, ctx.Err()
			}
			continue
		case errors.Is(err, redis.ErrClosed):
			return Message{}, ErrClosed
		case ctx.Err() != nil:
			return Message{}, ctx.Err()
		default:
			return Message{}, fmt.Errorf("redis blmove %s: %w", q.queue, err)
		}
	}
}

// Requeue moves every entry on the processing list back to the receiving end
// of the queue so the oldest is received first again. It returns how many
// entries moved.
func (q *RedisQueue) Requeue(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.queue, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			if n > 0 {
				q.logger.Info("requeued unacknowledged messages", "count", n, "queue", q.queue)
			}
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("redis lmove %s: %w", q.processing, err)
		}
		n++
	}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

type redisAck struct {
	q       *RedisQueue
	payload string
	mu      sync.Mutex
	done    bool
}

// Acknowledge removes the entry from the processing list. Once it succeeds
// later calls are no-ops; a failed attempt can be retried.
func (a *redisAck) Acknowledge(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done {
		return nil
	}
	if err := a.q.client.LRem(ctx, a.q.processing, 1, a.payload).Err(); err != nil {
		return fmt.Errorf("redis lrem %s: %w", a.q.processing, err)
	}
	a.done = true
	return nil
}
