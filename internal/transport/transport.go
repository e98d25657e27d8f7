// Package transport adapts message queues to the pipeline: a Receiver hands out
// raw payloads with an ack handle, a Publisher puts payloads on the queue.
// Neither retries; an un-acknowledged message comes back through the queue's
// own redelivery.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/laozhen/realtime-fraud-detection-system/internal/engine"
)

var (
	// ErrUnknownKind is returned by Build for an unsupported transport kind.
	ErrUnknownKind = errors.New("transport: unknown kind")
	// ErrClosed is returned once the queue has been closed.
	ErrClosed = errors.New("transport: closed")
)

const (
	KindMemory = "memory"
	KindRedis  = "redis"
)

// Message is one received payload and the handle that acknowledges it.
type Message struct {
	ID      string
	Payload []byte
	Ack     engine.Acknowledger
}

// Receiver blocks until a message is available, ctx ends or the queue closes.
type Receiver interface {
	Receive(ctx context.Context) (Message, error)
}

// Publisher enqueues a payload.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Queue is both ends of a transport.
type Queue interface {
	Receiver
	Publisher
	Close() error
}

// Options carries the settings for every transport kind; each uses its own fields.
type Options struct {
	// memory
	Capacity      int
	Visibility    time.Duration
	MaxDeliveries int

	// redis
	RedisAddr       string
	Queue           string
	ProcessingQueue string
	BlockTimeout    time.Duration

	Logger *slog.Logger
}

// Build selects a transport implementation by kind.
func Build(kind string, opts Options) (Queue, error) {
	switch kind {
	case KindMemory:
		return NewMemoryQueue(opts.Capacity, opts.Visibility, opts.MaxDeliveries), nil
	case KindRedis:
		client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		return NewRedisQueue(client, opts.Queue, opts.ProcessingQueue, opts.BlockTimeout, opts.Logger), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownKind, kind)
}
